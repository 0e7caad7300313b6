package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

const (
	insertProjectSQL = `
		INSERT INTO projects (name, description, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	selectProjectSQL = `
		SELECT id, name, description, owner_id, created_at
		FROM projects WHERE id = $1`
	listProjectsSQL = `
		SELECT id, name, description, owner_id, created_at
		FROM projects WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`
)

func (s *DBStorage) CreateProject(ctx context.Context, p common.Project) (common.Project, error) {
	err := s.conn.QueryRow(ctx, insertProjectSQL, p.Name, p.Description, p.OwnerID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return common.Project{}, fmt.Errorf("failed to insert project: %w", err)
	}
	return p, nil
}

func (s *DBStorage) GetProject(ctx context.Context, id int64) (common.Project, error) {
	var p common.Project
	err := s.conn.QueryRow(ctx, selectProjectSQL, id).Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)
	if err != nil {
		return common.Project{}, notFound(err, "project")
	}
	return p, nil
}

func (s *DBStorage) ListProjects(ctx context.Context, ownerID int64) ([]common.Project, error) {
	rows, err := s.conn.Query(ctx, listProjectsSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]common.Project, 0)
	for rows.Next() {
		var p common.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
