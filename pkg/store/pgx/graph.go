package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

const (
	insertNodeSQL = `
		INSERT INTO nodes (id, project_id, document_id, label, type, metadata, provenance)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''))`
	insertEdgeSQL = `
		INSERT INTO edges (id, project_id, document_id, source, target, type, metadata, provenance)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''))`
	insertSummarySQL = `
		INSERT INTO summaries (id, project_id, document_id, text, provenance)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))`

	selectNodesSQL = `
		SELECT id, COALESCE(document_id, ''), label, type, metadata, COALESCE(provenance, '')
		FROM nodes
		WHERE project_id = $1
		  AND ($2::text = '' OR strpos(lower(label), lower($2::text)) > 0)
		  AND ($3::text = '' OR type = $3::text)
		ORDER BY created_at, id`
	selectEdgesSQL = `
		SELECT id, COALESCE(document_id, ''), source, target, type, metadata, COALESCE(provenance, '')
		FROM edges
		WHERE project_id = $1
		ORDER BY created_at, id`
	selectSummariesSQL = `
		SELECT id, COALESCE(document_id, ''), text, COALESCE(provenance, '')
		FROM summaries
		WHERE project_id = $1
		ORDER BY created_at, id`
)

// SaveGraph writes every element of g for projectID in one transaction,
// nodes first, then edges, then summaries. The returned graph carries the
// assigned ids.
func (s *DBStorage) SaveGraph(ctx context.Context, projectID int64, g common.Graph) (common.Graph, error) {
	out := g.Clone()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return common.Graph{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(ctx); err != nil {
			logger.Error("[Store] Failed to rollback graph transaction", "project_id", projectID, "err", err)
		}
	}()

	for i := range out.Nodes {
		n := &out.Nodes[i]
		if n.ID, err = s.newID(); err != nil {
			return common.Graph{}, err
		}
		meta, err := jsonArg(n.Metadata)
		if err != nil {
			return common.Graph{}, err
		}
		if _, err := tx.Exec(ctx, insertNodeSQL, n.ID, projectID, n.DocumentID, n.Label, n.Type, meta, n.Provenance); err != nil {
			return common.Graph{}, fmt.Errorf("failed to insert node %d: %w", i, err)
		}
	}

	for i := range out.Edges {
		e := &out.Edges[i]
		if e.ID, err = s.newID(); err != nil {
			return common.Graph{}, err
		}
		meta, err := jsonArg(e.Metadata)
		if err != nil {
			return common.Graph{}, err
		}
		if _, err := tx.Exec(ctx, insertEdgeSQL, e.ID, projectID, e.DocumentID, e.Source, e.Target, e.Type, meta, e.Provenance); err != nil {
			return common.Graph{}, fmt.Errorf("failed to insert edge %d: %w", i, err)
		}
	}

	for i := range out.Summaries {
		sum := &out.Summaries[i]
		if sum.ID, err = s.newID(); err != nil {
			return common.Graph{}, err
		}
		if _, err := tx.Exec(ctx, insertSummarySQL, sum.ID, projectID, sum.DocumentID, sum.Text, sum.Provenance); err != nil {
			return common.Graph{}, fmt.Errorf("failed to insert summary %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.Graph{}, fmt.Errorf("failed to commit graph: %w", err)
	}
	committed = true

	logger.Debug(
		"[Store] Saved graph",
		"project_id", projectID,
		"nodes", len(out.Nodes),
		"edges", len(out.Edges),
		"summaries", len(out.Summaries),
	)
	return out, nil
}

// QueryGraph returns the project's nodes filtered by a case-insensitive
// label substring and an exact type, plus all of its edges and summaries.
func (s *DBStorage) QueryGraph(ctx context.Context, q common.GraphQuery) (common.Graph, error) {
	g := common.EmptyGraph()

	rows, err := s.conn.Query(ctx, selectNodesSQL, q.ProjectID, q.Label, q.Type)
	if err != nil {
		return common.Graph{}, fmt.Errorf("failed to query nodes: %w", err)
	}
	for rows.Next() {
		var n common.Node
		var meta []byte
		if err := rows.Scan(&n.ID, &n.DocumentID, &n.Label, &n.Type, &meta, &n.Provenance); err != nil {
			rows.Close()
			return common.Graph{}, fmt.Errorf("failed to scan node: %w", err)
		}
		if n.Metadata, err = decodeMetadata(meta); err != nil {
			rows.Close()
			return common.Graph{}, err
		}
		g.Nodes = append(g.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return common.Graph{}, fmt.Errorf("failed to read nodes: %w", err)
	}

	rows, err = s.conn.Query(ctx, selectEdgesSQL, q.ProjectID)
	if err != nil {
		return common.Graph{}, fmt.Errorf("failed to query edges: %w", err)
	}
	for rows.Next() {
		var e common.Edge
		var meta []byte
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Source, &e.Target, &e.Type, &meta, &e.Provenance); err != nil {
			rows.Close()
			return common.Graph{}, fmt.Errorf("failed to scan edge: %w", err)
		}
		if e.Metadata, err = decodeMetadata(meta); err != nil {
			rows.Close()
			return common.Graph{}, err
		}
		g.Edges = append(g.Edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return common.Graph{}, fmt.Errorf("failed to read edges: %w", err)
	}

	rows, err = s.conn.Query(ctx, selectSummariesSQL, q.ProjectID)
	if err != nil {
		return common.Graph{}, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sum common.Summary
		if err := rows.Scan(&sum.ID, &sum.DocumentID, &sum.Text, &sum.Provenance); err != nil {
			return common.Graph{}, fmt.Errorf("failed to scan summary: %w", err)
		}
		g.Summaries = append(g.Summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return common.Graph{}, fmt.Errorf("failed to read summaries: %w", err)
	}

	return g, nil
}
