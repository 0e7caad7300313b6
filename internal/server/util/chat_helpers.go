package util

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/web"
)

const defaultConversationTitle = "New conversation"

func BuildConversationTitle(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return defaultConversationTitle
	}

	const maxTitleLength = 120
	if utf8.RuneCountInString(trimmed) <= maxTitleLength {
		return trimmed
	}

	return string([]rune(trimmed)[:maxTitleLength])
}

// MessageView is a chat message as returned by the API. Assistant messages
// that carry a web-link checklist expose it parsed.
type MessageView struct {
	ID        int64                         `json:"id"`
	Role      string                        `json:"role"`
	Content   string                        `json:"content"`
	WebLinks  []common.WebLinkChecklistItem `json:"webLinks,omitempty"`
	CreatedAt time.Time                     `json:"createdAt"`
}

func ToMessageViews(messages []common.ChatMessage) []MessageView {
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		v := MessageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if m.Role == ai.RoleAssistant {
			if links, ok := web.ParseWebLinks(m.Content); ok {
				v.WebLinks = links
			}
		}
		views = append(views, v)
	}
	return views
}
