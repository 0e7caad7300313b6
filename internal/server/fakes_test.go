package server

import (
	"context"
	"sync"

	"github.com/OFFIS-RIT/kiwi-research/pkg/approval"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ingest"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
)

// fakeStore is an in-memory store.Storage.
type fakeStore struct {
	mu        sync.Mutex
	projects  []common.Project
	chats     []common.Chat
	messages  map[int64][]common.ChatMessage
	docs      []common.Document
	approvals map[int64]common.ApprovalState
	graph     common.Graph
	queries   []common.GraphQuery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:  map[int64][]common.ChatMessage{},
		approvals: map[int64]common.ApprovalState{},
		graph:     common.EmptyGraph(),
	}
}

func (f *fakeStore) SaveGraph(_ context.Context, _ int64, g common.Graph) (common.Graph, error) {
	return g, nil
}

func (f *fakeStore) QueryGraph(_ context.Context, q common.GraphQuery) (common.Graph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.graph, nil
}

func (f *fakeStore) CreateDocument(_ context.Context, doc common.Document) (common.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return doc, nil
}

func (f *fakeStore) GetDocument(_ context.Context, projectID int64, id string) (common.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ProjectID == projectID && d.ID == id {
			return d, nil
		}
	}
	return common.Document{}, store.ErrNotFound
}

func (f *fakeStore) ListDocuments(_ context.Context, projectID int64) ([]common.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]common.Document, 0)
	for _, d := range f.docs {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateProject(_ context.Context, p common.Project) (common.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.projects) + 1)
	f.projects = append(f.projects, p)
	return p, nil
}

func (f *fakeStore) GetProject(_ context.Context, id int64) (common.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return common.Project{}, store.ErrNotFound
}

func (f *fakeStore) ListProjects(_ context.Context, ownerID int64) ([]common.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]common.Project, 0)
	for _, p := range f.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateChat(_ context.Context, c common.Chat) (common.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = int64(len(f.chats) + 1)
	c.PublicID = "chat-" + string(rune('a'+len(f.chats)))
	f.chats = append(f.chats, c)
	return c, nil
}

func (f *fakeStore) GetChat(_ context.Context, projectID int64, publicID string) (common.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.ProjectID == projectID && c.PublicID == publicID {
			return c, nil
		}
	}
	return common.Chat{}, store.ErrNotFound
}

func (f *fakeStore) ListChats(_ context.Context, projectID int64, userID int64) ([]common.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]common.Chat, 0)
	for _, c := range f.chats {
		if c.ProjectID == projectID && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) AddMessage(_ context.Context, chatID int64, role string, content string) (common.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := common.ChatMessage{ID: int64(len(f.messages[chatID]) + 1), ChatID: chatID, Role: role, Content: content}
	f.messages[chatID] = append(f.messages[chatID], msg)
	return msg, nil
}

func (f *fakeStore) ListMessages(_ context.Context, chatID int64) ([]common.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.ChatMessage{}, f.messages[chatID]...), nil
}

func (f *fakeStore) LastAssistantMessage(context.Context, int64) (common.ChatMessage, error) {
	return common.ChatMessage{}, store.ErrNotFound
}

func (f *fakeStore) GetApprovalState(_ context.Context, chatID int64) (common.ApprovalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.approvals[chatID]
	if !ok {
		return common.ApprovalState{}, store.ErrNotFound
	}
	return st, nil
}

func (f *fakeStore) EnterAwaitingApproval(_ context.Context, chatID int64, links []common.WebLinkChecklistItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals[chatID] = common.ApprovalState{ChatID: chatID, Status: common.ApprovalAwaiting, PendingLinks: links}
	return nil
}

func (f *fakeStore) ClaimApproval(context.Context, int64) ([]common.WebLinkChecklistItem, error) {
	return nil, store.ErrApprovalNotPending
}

func (f *fakeStore) ReleaseApproval(context.Context, int64, bool) error {
	return nil
}

func (f *fakeStore) ResetApproval(context.Context, int64) error {
	return nil
}

type gateCall struct {
	chat    common.Chat
	userID  int64
	content string
}

type fakeGate struct {
	calls []gateCall
	reply approval.Reply
	err   error
}

func (g *fakeGate) HandleMessage(_ context.Context, chat common.Chat, userID int64, content string) (approval.Reply, error) {
	g.calls = append(g.calls, gateCall{chat: chat, userID: userID, content: content})
	return g.reply, g.err
}

type fakeIngester struct {
	texts   []ingest.TextInput
	webs    []ingest.WebInput
	pdfs    []ingest.PDFInput
	folded  [][]common.WebSearchOutput
	err     error
	outcome ingest.Outcome
}

func (f *fakeIngester) IngestText(_ context.Context, in ingest.TextInput) (ingest.Outcome, error) {
	f.texts = append(f.texts, in)
	return f.outcome, f.err
}

func (f *fakeIngester) IngestWeb(_ context.Context, in ingest.WebInput) (ingest.Outcome, error) {
	f.webs = append(f.webs, in)
	return f.outcome, f.err
}

func (f *fakeIngester) IngestPDF(_ context.Context, in ingest.PDFInput) (ingest.Outcome, error) {
	f.pdfs = append(f.pdfs, in)
	return f.outcome, f.err
}

func (f *fakeIngester) FoldWebResults(
	_ context.Context,
	_ int64,
	_ int64,
	results []common.WebSearchOutput,
) (common.Graph, error) {
	f.folded = append(f.folded, results)
	return common.EmptyGraph(), f.err
}

type fakeLinker struct{}

func (fakeLinker) DownloadLink(_ context.Context, key string) (string, error) {
	return "https://files.example/" + key, nil
}
