package web

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

// ApproveCommand is the chat command that approves checklist items.
const ApproveCommand = "/approve-web-links"

const webLinksKey = "webLinks"

var approveCommandRe = regexp.MustCompile(`^/approve-web-links\s+(.+)`)

// FormatChecklist flattens all search outputs of one turn into checklist
// items with ids "<resultIndex>-<itemIndex>".
func FormatChecklist(results []common.WebSearchOutput) []common.WebLinkChecklistItem {
	items := make([]common.WebLinkChecklistItem, 0)
	for resultIdx, out := range results {
		for i, r := range out.Results {
			items = append(items, common.WebLinkChecklistItem{
				ID:      fmt.Sprintf("%d-%d", resultIdx, i),
				URL:     r.URL,
				Title:   r.Title,
				Summary: excerpt(r.Content, checklistExcerptLen),
			})
		}
	}
	return items
}

// RenderRecommendations renders the checklist as markdown for the chat.
func RenderRecommendations(items []common.WebLinkChecklistItem) string {
	if len(items) == 0 {
		return "The web search returned no results."
	}
	var b strings.Builder
	b.WriteString("I found the following web results. Nothing has been added to the graph yet.\n")
	fmt.Fprintf(&b, "Reply with `%s <id>[,<id>...]` to add the ones you want.\n\n", ApproveCommand)
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = item.URL
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", item.ID, title, item.URL)
		if item.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", strings.ReplaceAll(item.Summary, "\n", " "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// EncodeWebLinks serializes items as a {"webLinks": [...]} block.
func EncodeWebLinks(items []common.WebLinkChecklistItem) string {
	if items == nil {
		items = []common.WebLinkChecklistItem{}
	}
	raw, err := json.Marshal(map[string]any{webLinksKey: items})
	if err != nil {
		return `{"webLinks":[]}`
	}
	return string(raw)
}

// ComposeAssistantMessage builds the stored body of a checklist-bearing
// assistant message: the model's text, the recommendations and the
// serialized links.
func ComposeAssistantMessage(text string, items []common.WebLinkChecklistItem) string {
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, RenderRecommendations(items), EncodeWebLinks(items))
	return strings.Join(parts, "\n\n")
}

// ParseWebLinks recovers the checklist embedded in a message body. The
// last webLinks block wins. ok is false if no parseable block exists.
func ParseWebLinks(message string) (items []common.WebLinkChecklistItem, ok bool) {
	rest := message
	var found []common.WebLinkChecklistItem
	for {
		idx := strings.Index(rest, webLinksKey)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(webLinksKey):]
		arr, ok := balancedArray(rest)
		if !ok {
			continue
		}
		var parsed []common.WebLinkChecklistItem
		if err := ai.UnmarshalFlexible(arr, &parsed); err != nil {
			continue
		}
		found = parsed
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

// balancedArray returns the first JSON-ish array in s, provided only a
// key separator precedes it.
func balancedArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}
	if strings.Trim(s[:start], " \t\r\n\":'") != "" {
		return "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// SelectApproved keeps the checklist items whose id was approved, in
// checklist order.
func SelectApproved(items []common.WebLinkChecklistItem, ids []string) []common.WebLinkChecklistItem {
	out := make([]common.WebLinkChecklistItem, 0, len(ids))
	for _, item := range items {
		if slices.Contains(ids, item.ID) {
			out = append(out, item)
		}
	}
	return out
}

// ParseApproveCommand reports whether content is an approval command and
// returns the trimmed, non-empty ids it carries.
func ParseApproveCommand(content string) ([]string, bool) {
	m := approveCommandRe.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil {
		return nil, false
	}
	ids := make([]string, 0)
	for _, id := range strings.Split(m[1], ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, true
}
