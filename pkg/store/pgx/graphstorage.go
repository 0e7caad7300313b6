package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// DBStorage implements every store interface on PostgreSQL.
type DBStorage struct {
	conn  pgxIConn
	newID func() (string, error)
}

var _ store.Storage = (*DBStorage)(nil)

type DBStorageOption func(*DBStorage)

// WithIDGenerator replaces the nanoid generator used for text ids.
func WithIDGenerator(fn func() (string, error)) DBStorageOption {
	return func(s *DBStorage) {
		s.newID = fn
	}
}

func NewDBStorageWithConnection(conn pgxIConn, opts ...DBStorageOption) *DBStorage {
	s := &DBStorage{
		conn:  conn,
		newID: func() (string, error) { return gonanoid.New() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func notFound(err error, what string) error {
	if errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// jsonArg encodes v for a jsonb column. Empty maps become NULL.
func jsonArg(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return raw, nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return out, nil
}
