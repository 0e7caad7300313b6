package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrApprovalNotPending = errors.New("no approval pending")
)

// GraphStorage persists and reads graph elements of a project.
type GraphStorage interface {
	// SaveGraph inserts nodes, then edges, then summaries in one
	// transaction. Store-assigned ids are written back into the result.
	SaveGraph(ctx context.Context, projectID int64, g common.Graph) (common.Graph, error)
	QueryGraph(ctx context.Context, q common.GraphQuery) (common.Graph, error)
}

type DocumentStorage interface {
	CreateDocument(ctx context.Context, doc common.Document) (common.Document, error)
	GetDocument(ctx context.Context, projectID int64, id string) (common.Document, error)
	ListDocuments(ctx context.Context, projectID int64) ([]common.Document, error)
}

type ProjectStorage interface {
	CreateProject(ctx context.Context, p common.Project) (common.Project, error)
	GetProject(ctx context.Context, id int64) (common.Project, error)
	ListProjects(ctx context.Context, ownerID int64) ([]common.Project, error)
}

type ChatStorage interface {
	CreateChat(ctx context.Context, c common.Chat) (common.Chat, error)
	GetChat(ctx context.Context, projectID int64, publicID string) (common.Chat, error)
	ListChats(ctx context.Context, projectID int64, userID int64) ([]common.Chat, error)
	AddMessage(ctx context.Context, chatID int64, role string, content string) (common.ChatMessage, error)
	ListMessages(ctx context.Context, chatID int64) ([]common.ChatMessage, error)
	// LastAssistantMessage returns ErrNotFound if the chat has none.
	LastAssistantMessage(ctx context.Context, chatID int64) (common.ChatMessage, error)
}

// ApprovalStorage holds the per-chat web-link approval state.
type ApprovalStorage interface {
	// GetApprovalState returns ErrNotFound when no record exists.
	GetApprovalState(ctx context.Context, chatID int64) (common.ApprovalState, error)
	EnterAwaitingApproval(ctx context.Context, chatID int64, links []common.WebLinkChecklistItem) error
	// ClaimApproval moves awaiting_approval to processing and returns the
	// pending links. It returns ErrApprovalNotPending if the chat is in
	// any other state.
	ClaimApproval(ctx context.Context, chatID int64) ([]common.WebLinkChecklistItem, error)
	// ReleaseApproval finishes a claimed approval: to normal on success,
	// back to awaiting_approval otherwise.
	ReleaseApproval(ctx context.Context, chatID int64, ok bool) error
	// ResetApproval drops links still awaiting approval and moves the
	// chat back to normal. Chats in any other state are left untouched.
	ResetApproval(ctx context.Context, chatID int64) error
}

// Storage bundles every store used by the service.
type Storage interface {
	GraphStorage
	DocumentStorage
	ProjectStorage
	ChatStorage
	ApprovalStorage
}
