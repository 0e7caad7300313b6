package routes

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/kiwi-research/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ingest"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
)

// CreateDocumentHandler ingests a text document or a web page given by url.
func CreateDocumentHandler(c echo.Context) error {
	type createDocumentBody struct {
		Title    string         `json:"title" validate:"max=200"`
		Type     string         `json:"type" validate:"required,oneof=text web"`
		Content  string         `json:"content"`
		URL      string         `json:"url" validate:"omitempty,url"`
		Metadata map[string]any `json:"metadata"`
	}

	data := new(createDocumentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	cc := c.(*middleware.AppContext)
	ctx := c.Request().Context()

	var (
		out ingest.Outcome
		err error
	)
	switch common.DocumentType(data.Type) {
	case common.DocumentTypeWeb:
		if data.URL == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "url is required for web documents"})
		}
		out, err = cc.App.Ingest.IngestWeb(ctx, ingest.WebInput{
			ProjectID: cc.Project.ID,
			UserID:    cc.User.UserID,
			Title:     data.Title,
			URL:       data.URL,
			Metadata:  data.Metadata,
		})
	default:
		if strings.TrimSpace(data.Content) == "" || strings.TrimSpace(data.Title) == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "title and content are required for text documents"})
		}
		out, err = cc.App.Ingest.IngestText(ctx, ingest.TextInput{
			ProjectID: cc.Project.ID,
			UserID:    cc.User.UserID,
			Title:     data.Title,
			Content:   data.Content,
			Metadata:  data.Metadata,
		})
	}
	if err != nil {
		return ingestFailed(c, out, err)
	}

	return c.JSON(http.StatusCreated, out)
}

// UploadPDFHandler ingests a multipart pdf upload sent as field "file".
func UploadPDFHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)

	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "file is required"})
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "only pdf files are supported"})
	}
	maxBytes := cc.App.MaxPDFMB << 20
	if maxBytes > 0 && file.Size > maxBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"message": "File too large"})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid file"})
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid file"})
	}

	out, err := cc.App.Ingest.IngestPDF(c.Request().Context(), ingest.PDFInput{
		ProjectID: cc.Project.ID,
		UserID:    cc.User.UserID,
		Title:     c.FormValue("title"),
		FileName:  filepath.Base(file.Filename),
		Data:      content,
	})
	if err != nil {
		return ingestFailed(c, out, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func GetDocumentsHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	docs, err := cc.App.Store.ListDocuments(c.Request().Context(), cc.Project.ID)
	if err != nil {
		logger.Error("[Server] Failed to list documents", "project_id", cc.Project.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	return c.JSON(http.StatusOK, docs)
}

// GetDocumentHandler returns one document. Uploaded files come with a
// short-lived download link.
func GetDocumentHandler(c echo.Context) error {
	type getDocumentResponse struct {
		common.Document
		DownloadURL string `json:"downloadUrl,omitempty"`
	}

	cc := c.(*middleware.AppContext)
	ctx := c.Request().Context()

	doc, err := cc.App.Store.GetDocument(ctx, cc.Project.ID, c.Param("document_id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Document not found"})
	}
	if err != nil {
		logger.Error("[Server] Failed to load document", "project_id", cc.Project.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	resp := getDocumentResponse{Document: doc}
	if doc.FileKey != "" && cc.App.Files != nil {
		link, err := cc.App.Files.DownloadLink(ctx, doc.FileKey)
		if err != nil {
			logger.Warn("[Server] Failed to sign download link", "document_id", doc.ID, "err", err)
		} else {
			resp.DownloadURL = link
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// ingestFailed reports an ingestion error. A document that was created
// before the failure is still returned so the client can refer to it.
func ingestFailed(c echo.Context, out ingest.Outcome, err error) error {
	logger.Error("[Server] Document ingestion failed", "document_id", out.Document.ID, "err", err)
	resp := map[string]any{"message": "Failed to ingest document"}
	if out.Document.ID != "" {
		resp["document"] = out.Document
	}
	return c.JSON(http.StatusInternalServerError, resp)
}
