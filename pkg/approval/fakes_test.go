package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ingest"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
)

type scriptedCall struct {
	tool   string
	args   string
	answer string
}

// scriptedClient answers the n-th model call with script[n], running the
// optional tool call through the real handler first.
type scriptedClient struct {
	mu     sync.Mutex
	script []scriptedCall
	calls  int
}

func (c *scriptedClient) GenerateChatWithTools(
	ctx context.Context,
	_ []ai.ChatMessage,
	tools []ai.Tool,
	_ ...ai.GenerateOption,
) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.script) {
		return "", errors.New("unexpected model call")
	}
	step := c.script[c.calls]
	c.calls++
	if step.tool != "" {
		for _, t := range tools {
			if t.Name == step.tool {
				if _, err := t.Handler(ctx, step.args); err != nil {
					return "", err
				}
			}
		}
	}
	return step.answer, nil
}

func (c *scriptedClient) ResetMetrics()               {}
func (c *scriptedClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fakeSearcher struct {
	out common.WebSearchOutput
}

func (s *fakeSearcher) Search(context.Context, common.WebSearchInput) (common.WebSearchOutput, error) {
	return s.out, nil
}

type fakeScraper struct {
	pages map[string]string
	urls  []string
}

func (s *fakeScraper) Scrape(_ context.Context, url string) common.ScrapeResult {
	s.urls = append(s.urls, url)
	text, ok := s.pages[url]
	if !ok {
		return common.ScrapeResult{Metadata: common.ScrapeMetadata{URL: url, Error: "not found"}}
	}
	return common.ScrapeResult{Text: text, Metadata: common.ScrapeMetadata{URL: url, Title: "Scraped " + url}}
}

// memStore keeps chats, approval states, documents and graphs in memory.
type memStore struct {
	mu        sync.Mutex
	messages  map[int64][]common.ChatMessage
	approvals map[int64]common.ApprovalState
	docs      []common.Document
	graphs    []common.Graph
	nextID    int64
	failClaim error
}

func newMemStore() *memStore {
	return &memStore{
		messages:  map[int64][]common.ChatMessage{},
		approvals: map[int64]common.ApprovalState{},
	}
}

func (m *memStore) AddMessage(_ context.Context, chatID int64, role string, content string) (common.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg := common.ChatMessage{ID: m.nextID, ChatID: chatID, Role: role, Content: content, CreatedAt: time.Now()}
	m.messages[chatID] = append(m.messages[chatID], msg)
	return msg, nil
}

func (m *memStore) ListMessages(_ context.Context, chatID int64) ([]common.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]common.ChatMessage(nil), m.messages[chatID]...), nil
}

func (m *memStore) LastAssistantMessage(_ context.Context, chatID int64) (common.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[chatID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ai.RoleAssistant {
			return msgs[i], nil
		}
	}
	return common.ChatMessage{}, store.ErrNotFound
}

func (m *memStore) CreateChat(_ context.Context, c common.Chat) (common.Chat, error) {
	return c, nil
}

func (m *memStore) GetChat(context.Context, int64, string) (common.Chat, error) {
	return common.Chat{}, store.ErrNotFound
}

func (m *memStore) ListChats(context.Context, int64, int64) ([]common.Chat, error) {
	return nil, nil
}

func (m *memStore) GetApprovalState(_ context.Context, chatID int64) (common.ApprovalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.approvals[chatID]
	if !ok {
		return common.ApprovalState{}, store.ErrNotFound
	}
	return st, nil
}

func (m *memStore) EnterAwaitingApproval(_ context.Context, chatID int64, links []common.WebLinkChecklistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[chatID] = common.ApprovalState{ChatID: chatID, Status: common.ApprovalAwaiting, PendingLinks: links}
	return nil
}

func (m *memStore) ClaimApproval(_ context.Context, chatID int64) ([]common.WebLinkChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClaim != nil {
		return nil, m.failClaim
	}
	st, ok := m.approvals[chatID]
	if !ok || st.Status != common.ApprovalAwaiting {
		return nil, store.ErrApprovalNotPending
	}
	st.Status = common.ApprovalProcessing
	m.approvals[chatID] = st
	return st.PendingLinks, nil
}

func (m *memStore) ReleaseApproval(_ context.Context, chatID int64, ok bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, exists := m.approvals[chatID]
	if !exists || st.Status != common.ApprovalProcessing {
		return store.ErrApprovalNotPending
	}
	if ok {
		st.Status = common.ApprovalNormal
		st.PendingLinks = nil
	} else {
		st.Status = common.ApprovalAwaiting
	}
	m.approvals[chatID] = st
	return nil
}

func (m *memStore) ResetApproval(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, exists := m.approvals[chatID]
	if !exists || st.Status != common.ApprovalAwaiting {
		return nil
	}
	st.Status = common.ApprovalNormal
	st.PendingLinks = nil
	m.approvals[chatID] = st
	return nil
}

func (m *memStore) CreateDocument(_ context.Context, doc common.Document) (common.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = fmt.Sprintf("doc-%d", len(m.docs)+1)
	m.docs = append(m.docs, doc)
	return doc, nil
}

func (m *memStore) GetDocument(context.Context, int64, string) (common.Document, error) {
	return common.Document{}, store.ErrNotFound
}

func (m *memStore) ListDocuments(context.Context, int64) ([]common.Document, error) {
	return nil, nil
}

func (m *memStore) SaveGraph(_ context.Context, _ int64, g common.Graph) (common.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs = append(m.graphs, g)
	return g, nil
}

func (m *memStore) QueryGraph(context.Context, common.GraphQuery) (common.Graph, error) {
	return common.EmptyGraph(), nil
}

// failingIngester fails for every link.
type failingIngester struct {
	calls int
}

func (f *failingIngester) IngestApprovedLink(
	context.Context,
	int64,
	int64,
	common.WebLinkChecklistItem,
) (ingest.Outcome, error) {
	f.calls++
	return ingest.Outcome{}, errors.New("scrape blew up")
}
