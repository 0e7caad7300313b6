package common

import "time"

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     int64     `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Chat struct {
	ID        int64     `json:"-"`
	PublicID  string    `json:"id"`
	ProjectID int64     `json:"projectId"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatMessage struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ApprovalStatus is the state of a chat's web-link approval flow.
type ApprovalStatus string

const (
	ApprovalNormal     ApprovalStatus = "normal"
	ApprovalAwaiting   ApprovalStatus = "awaiting_approval"
	ApprovalProcessing ApprovalStatus = "processing"
)

// ApprovalState is the persisted pending-approval set of a chat.
type ApprovalState struct {
	ChatID       int64                  `json:"chatId"`
	Status       ApprovalStatus         `json:"status"`
	PendingLinks []WebLinkChecklistItem `json:"pendingLinks"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}
