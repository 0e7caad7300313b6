package common

import "time"

type DocumentType string

const (
	DocumentTypeText DocumentType = "text"
	DocumentTypePDF  DocumentType = "pdf"
	DocumentTypeWeb  DocumentType = "web"
)

// DocumentSource records who brought a document into the project.
type DocumentSource string

const (
	DocumentSourceUser  DocumentSource = "user"
	DocumentSourceAgent DocumentSource = "agent"
	DocumentSourceWeb   DocumentSource = "web"
)

// Document is a piece of source material attached to a project.
type Document struct {
	ID            string         `json:"id,omitempty"`
	ProjectID     int64          `json:"projectId"`
	UserID        int64          `json:"userId"`
	Title         string         `json:"title" validate:"min=1,max=200"`
	Type          DocumentType   `json:"type" validate:"max=50"`
	URL           string         `json:"url,omitempty"`
	Content       string         `json:"content,omitempty"`
	ExtractedText string         `json:"extractedText,omitempty"`
	FileKey       string         `json:"fileKey,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Source        DocumentSource `json:"source"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Text returns the best available text for extraction.
func (d Document) Text() string {
	if d.ExtractedText != "" {
		return d.ExtractedText
	}
	return d.Content
}

// ScrapeResult is what a page scraper returns. Failures are reported in
// Metadata.Error with an empty Text, never as a Go error.
type ScrapeResult struct {
	Text     string         `json:"text"`
	Metadata ScrapeMetadata `json:"metadata"`
}

type ScrapeMetadata struct {
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Error       string `json:"error,omitempty"`
}

// AsMap flattens the metadata for storage on a document.
func (m ScrapeMetadata) AsMap() map[string]any {
	out := map[string]any{}
	if m.URL != "" {
		out["url"] = m.URL
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.ContentType != "" {
		out["contentType"] = m.ContentType
	}
	if m.Error != "" {
		out["error"] = m.Error
	}
	return out
}
