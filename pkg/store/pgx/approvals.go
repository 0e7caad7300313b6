package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const (
	selectApprovalSQL = `
		SELECT chat_id, status, pending_links, updated_at
		FROM approval_states WHERE chat_id = $1`
	upsertAwaitingSQL = `
		INSERT INTO approval_states (chat_id, status, pending_links, updated_at)
		VALUES ($1, 'awaiting_approval', $2, now())
		ON CONFLICT (chat_id) DO UPDATE
		SET status = EXCLUDED.status, pending_links = EXCLUDED.pending_links, updated_at = now()`
	// A processing claim older than the stale interval is treated as
	// abandoned so a crashed run cannot block the chat forever.
	claimApprovalSQL = `
		UPDATE approval_states
		SET status = 'processing', updated_at = now()
		WHERE chat_id = $1
		  AND (status = 'awaiting_approval'
		       OR (status = 'processing' AND updated_at < now() - interval '15 minutes'))
		RETURNING pending_links`
	releaseApprovalOKSQL = `
		UPDATE approval_states
		SET status = 'normal', pending_links = '[]'::jsonb, updated_at = now()
		WHERE chat_id = $1 AND status = 'processing'`
	releaseApprovalFailedSQL = `
		UPDATE approval_states
		SET status = 'awaiting_approval', updated_at = now()
		WHERE chat_id = $1 AND status = 'processing'`
	resetApprovalSQL = `
		UPDATE approval_states
		SET status = 'normal', pending_links = '[]'::jsonb, updated_at = now()
		WHERE chat_id = $1 AND status = 'awaiting_approval'`
)

func (s *DBStorage) GetApprovalState(ctx context.Context, chatID int64) (common.ApprovalState, error) {
	var st common.ApprovalState
	var status string
	var raw []byte
	err := s.conn.QueryRow(ctx, selectApprovalSQL, chatID).Scan(&st.ChatID, &status, &raw, &st.UpdatedAt)
	if err != nil {
		return common.ApprovalState{}, notFound(err, "approval state")
	}
	st.Status = common.ApprovalStatus(status)
	if st.PendingLinks, err = decodeLinks(raw); err != nil {
		return common.ApprovalState{}, err
	}
	return st, nil
}

func (s *DBStorage) EnterAwaitingApproval(ctx context.Context, chatID int64, links []common.WebLinkChecklistItem) error {
	if links == nil {
		links = []common.WebLinkChecklistItem{}
	}
	raw, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to encode pending links: %w", err)
	}
	if _, err := s.conn.Exec(ctx, upsertAwaitingSQL, chatID, raw); err != nil {
		return fmt.Errorf("failed to store approval state: %w", err)
	}
	return nil
}

func (s *DBStorage) ClaimApproval(ctx context.Context, chatID int64) ([]common.WebLinkChecklistItem, error) {
	var raw []byte
	err := s.conn.QueryRow(ctx, claimApprovalSQL, chatID).Scan(&raw)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrApprovalNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim approval: %w", err)
	}
	return decodeLinks(raw)
}

func (s *DBStorage) ReleaseApproval(ctx context.Context, chatID int64, ok bool) error {
	query := releaseApprovalFailedSQL
	if ok {
		query = releaseApprovalOKSQL
	}
	tag, err := s.conn.Exec(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("failed to release approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrApprovalNotPending
	}
	return nil
}

func (s *DBStorage) ResetApproval(ctx context.Context, chatID int64) error {
	if _, err := s.conn.Exec(ctx, resetApprovalSQL, chatID); err != nil {
		return fmt.Errorf("failed to reset approval state: %w", err)
	}
	return nil
}

func decodeLinks(raw []byte) ([]common.WebLinkChecklistItem, error) {
	links := make([]common.WebLinkChecklistItem, 0)
	if len(raw) == 0 {
		return links, nil
	}
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("failed to decode pending links: %w", err)
	}
	return links, nil
}
