package pdf

import (
	"context"
	"os/exec"
	"testing"
)

func TestExtractTextRejectsEmptyInput(t *testing.T) {
	e := NewExtractor(0)
	if _, err := e.ExtractText(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		t.Skip("pdftotext not installed")
	}
	e := NewExtractor(0)
	if _, err := e.ExtractText(context.Background(), []byte("not a pdf")); err == nil {
		t.Fatal("expected error for invalid pdf")
	}
}
