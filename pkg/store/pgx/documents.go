package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/internal/util"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

const (
	insertDocumentSQL = `
		INSERT INTO documents (id, project_id, user_id, title, type, url, content, extracted_text, file_key, metadata, source)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), COALESCE($10, '{}'::jsonb), $11)
		RETURNING created_at`
	documentColumns = `
		id, project_id, user_id, title, type, COALESCE(url, ''), COALESCE(content, ''),
		COALESCE(extracted_text, ''), COALESCE(file_key, ''), metadata, source, created_at`
	selectDocumentSQL = `SELECT ` + documentColumns + ` FROM documents WHERE project_id = $1 AND id = $2`
	listDocumentsSQL  = `SELECT ` + documentColumns + ` FROM documents WHERE project_id = $1 ORDER BY created_at DESC, id`
)

// CreateDocument inserts doc and returns it with its id and creation time.
// Text fields are stripped of bytes PostgreSQL rejects.
func (s *DBStorage) CreateDocument(ctx context.Context, doc common.Document) (common.Document, error) {
	id, err := s.newID()
	if err != nil {
		return common.Document{}, err
	}
	doc.ID = id
	doc.Content = util.SanitizePostgresText(doc.Content)
	doc.ExtractedText = util.SanitizePostgresText(doc.ExtractedText)

	meta, err := jsonArg(doc.Metadata)
	if err != nil {
		return common.Document{}, err
	}

	err = s.conn.QueryRow(
		ctx, insertDocumentSQL,
		doc.ID, doc.ProjectID, doc.UserID, doc.Title, string(doc.Type),
		doc.URL, doc.Content, doc.ExtractedText, doc.FileKey, meta, string(doc.Source),
	).Scan(&doc.CreatedAt)
	if err != nil {
		return common.Document{}, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc, nil
}

func (s *DBStorage) GetDocument(ctx context.Context, projectID int64, id string) (common.Document, error) {
	row := s.conn.QueryRow(ctx, selectDocumentSQL, projectID, id)
	doc, err := scanDocument(row)
	if err != nil {
		return common.Document{}, notFound(err, "document")
	}
	return doc, nil
}

func (s *DBStorage) ListDocuments(ctx context.Context, projectID int64) ([]common.Document, error) {
	rows, err := s.conn.Query(ctx, listDocumentsSQL, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]common.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (common.Document, error) {
	var doc common.Document
	var docType, source string
	var meta []byte
	if err := row.Scan(
		&doc.ID, &doc.ProjectID, &doc.UserID, &doc.Title, &docType, &doc.URL, &doc.Content,
		&doc.ExtractedText, &doc.FileKey, &meta, &source, &doc.CreatedAt,
	); err != nil {
		return common.Document{}, err
	}
	doc.Type = common.DocumentType(docType)
	doc.Source = common.DocumentSource(source)
	metadata, err := decodeMetadata(meta)
	if err != nil {
		return common.Document{}, err
	}
	doc.Metadata = metadata
	return doc, nil
}
