package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/internal/util"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

const (
	insertChatSQL = `
		INSERT INTO chats (public_id, project_id, user_id, title)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	selectChatSQL = `
		SELECT id, public_id, project_id, user_id, title, created_at
		FROM chats WHERE project_id = $1 AND public_id = $2`
	listChatsSQL = `
		SELECT id, public_id, project_id, user_id, title, created_at
		FROM chats WHERE project_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC`
	insertMessageSQL = `
		INSERT INTO chat_messages (chat_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	listMessagesSQL = `
		SELECT id, chat_id, role, content, created_at
		FROM chat_messages WHERE chat_id = $1
		ORDER BY id`
	lastAssistantMessageSQL = `
		SELECT id, chat_id, role, content, created_at
		FROM chat_messages WHERE chat_id = $1 AND role = 'assistant'
		ORDER BY id DESC LIMIT 1`
)

func (s *DBStorage) CreateChat(ctx context.Context, c common.Chat) (common.Chat, error) {
	publicID, err := s.newID()
	if err != nil {
		return common.Chat{}, err
	}
	c.PublicID = publicID
	err = s.conn.QueryRow(ctx, insertChatSQL, c.PublicID, c.ProjectID, c.UserID, c.Title).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return common.Chat{}, fmt.Errorf("failed to insert chat: %w", err)
	}
	return c, nil
}

func (s *DBStorage) GetChat(ctx context.Context, projectID int64, publicID string) (common.Chat, error) {
	var c common.Chat
	err := s.conn.QueryRow(ctx, selectChatSQL, projectID, publicID).
		Scan(&c.ID, &c.PublicID, &c.ProjectID, &c.UserID, &c.Title, &c.CreatedAt)
	if err != nil {
		return common.Chat{}, notFound(err, "chat")
	}
	return c, nil
}

func (s *DBStorage) ListChats(ctx context.Context, projectID int64, userID int64) ([]common.Chat, error) {
	rows, err := s.conn.Query(ctx, listChatsSQL, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := make([]common.Chat, 0)
	for rows.Next() {
		var c common.Chat
		if err := rows.Scan(&c.ID, &c.PublicID, &c.ProjectID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *DBStorage) AddMessage(ctx context.Context, chatID int64, role string, content string) (common.ChatMessage, error) {
	msg := common.ChatMessage{ChatID: chatID, Role: role, Content: util.SanitizePostgresText(content)}
	err := s.conn.QueryRow(ctx, insertMessageSQL, chatID, role, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return common.ChatMessage{}, fmt.Errorf("failed to insert %s message: %w", role, err)
	}
	return msg, nil
}

func (s *DBStorage) ListMessages(ctx context.Context, chatID int64) ([]common.ChatMessage, error) {
	rows, err := s.conn.Query(ctx, listMessagesSQL, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]common.ChatMessage, 0)
	for rows.Next() {
		var m common.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *DBStorage) LastAssistantMessage(ctx context.Context, chatID int64) (common.ChatMessage, error) {
	var m common.ChatMessage
	err := s.conn.QueryRow(ctx, lastAssistantMessageSQL, chatID).
		Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		return common.ChatMessage{}, notFound(err, "assistant message")
	}
	return m, nil
}
