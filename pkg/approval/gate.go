package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/pkg/agent"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ingest"
	"github.com/OFFIS-RIT/kiwi-research/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
	"github.com/OFFIS-RIT/kiwi-research/pkg/web"
)

// Runner runs a conversational agent turn.
type Runner interface {
	Run(ctx context.Context, conversation []agent.Turn, opts agent.RunOptions) (agent.Result, error)
}

// LinkIngester turns one approved checklist item into a document and graph.
type LinkIngester interface {
	IngestApprovedLink(ctx context.Context, projectID int64, userID int64, item common.WebLinkChecklistItem) (ingest.Outcome, error)
}

// Locker serializes work on one key across server instances.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// ErrChatBusy is returned while another message of the same chat is being
// handled.
var ErrChatBusy = errors.New("chat is busy")

type Metrics interface {
	ApprovalProcessed(requested int, added int)
}

type noopMetrics struct{}

func (noopMetrics) ApprovalProcessed(int, int) {}

// Gate drives a chat through normal turns and the web-link approval flow.
//
//	normal --(turn used web search)--> awaiting_approval
//	awaiting_approval --(approve command)--> processing --> normal
//
// A failed approval run returns the chat to awaiting_approval.
type Gate struct {
	runner    Runner
	links     LinkIngester
	chats     store.ChatStorage
	approvals store.ApprovalStorage
	metrics   Metrics
	locker    Locker
}

type NewGateParams struct {
	Runner    Runner
	Links     LinkIngester
	Chats     store.ChatStorage
	Approvals store.ApprovalStorage
	Metrics   Metrics
	// Locker is optional. Without it messages of one chat may interleave.
	Locker Locker
}

func NewGate(params NewGateParams) *Gate {
	g := &Gate{
		runner:    params.Runner,
		links:     params.Links,
		chats:     params.Chats,
		approvals: params.Approvals,
		metrics:   params.Metrics,
		locker:    params.Locker,
	}
	if g.metrics == nil {
		g.metrics = noopMetrics{}
	}
	return g
}

// Reply is what one user message produced. Result is set for
// conversational turns, Added and Documents for approval commands.
type Reply struct {
	UserMessage      common.ChatMessage `json:"userMessage"`
	AssistantMessage common.ChatMessage `json:"assistantMessage"`
	Result           *agent.Result      `json:"result,omitempty"`
	Approval         bool               `json:"approval"`
	Added            int                `json:"added"`
	Documents        []common.Document  `json:"documents,omitempty"`
}

// HandleMessage dispatches content either to the approval flow or to a
// normal agent turn. With a Locker, one message per chat is handled at a
// time and concurrent ones fail with ErrChatBusy.
func (g *Gate) HandleMessage(ctx context.Context, chat common.Chat, userID int64, content string) (Reply, error) {
	if g.locker == nil {
		return g.dispatch(ctx, chat, userID, content)
	}

	var reply Reply
	err := g.locker.WithLease(ctx, fmt.Sprintf("chat:%d", chat.ID), leaselock.Options{}, func(ctx context.Context) error {
		var err error
		reply, err = g.dispatch(ctx, chat, userID, content)
		return err
	})
	if errors.Is(err, leaselock.ErrBusy) {
		return Reply{}, ErrChatBusy
	}
	return reply, err
}

func (g *Gate) dispatch(ctx context.Context, chat common.Chat, userID int64, content string) (Reply, error) {
	if ids, ok := web.ParseApproveCommand(content); ok {
		return g.HandleApproval(ctx, chat, userID, content, ids)
	}
	return g.HandleTurn(ctx, chat, userID, content)
}

// HandleTurn stores the user message, runs the agent on the chat history
// and stores the reply. When the agent used web search, the reply embeds
// the checklist and the chat moves to awaiting_approval.
func (g *Gate) HandleTurn(ctx context.Context, chat common.Chat, userID int64, content string) (Reply, error) {
	userMsg, err := g.chats.AddMessage(ctx, chat.ID, ai.RoleUser, content)
	if err != nil {
		return Reply{}, err
	}

	history, err := g.chats.ListMessages(ctx, chat.ID)
	if err != nil {
		return Reply{UserMessage: userMsg}, err
	}
	turns := make([]agent.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, agent.Turn{Role: m.Role, Content: m.Content})
	}

	res, err := g.runner.Run(ctx, turns, agent.RunOptions{ProjectID: chat.ProjectID, UserID: userID})
	if err != nil {
		return Reply{UserMessage: userMsg}, err
	}

	body := res.Text
	if res.AwaitingUserApproval {
		if err := g.approvals.EnterAwaitingApproval(ctx, chat.ID, res.WebLinks); err != nil {
			return Reply{UserMessage: userMsg}, err
		}
		body = web.ComposeAssistantMessage(res.Text, res.WebLinks)
		logger.Info("[Approval] Awaiting approval", "chat_id", chat.PublicID, "links", len(res.WebLinks))
	} else if err := g.approvals.ResetApproval(ctx, chat.ID); err != nil {
		// Links offered before this turn no longer match the last reply.
		return Reply{UserMessage: userMsg}, err
	}

	assistantMsg, err := g.chats.AddMessage(ctx, chat.ID, ai.RoleAssistant, body)
	if err != nil {
		return Reply{UserMessage: userMsg}, err
	}

	return Reply{UserMessage: userMsg, AssistantMessage: assistantMsg, Result: &res}, nil
}

// HandleApproval processes an approve command. Approved links are scraped
// and ingested one after another. Afterwards the command and a confirmation
// are stored as chat messages.
func (g *Gate) HandleApproval(
	ctx context.Context,
	chat common.Chat,
	userID int64,
	command string,
	ids []string,
) (Reply, error) {
	pending, claimed, err := g.pendingLinks(ctx, chat.ID)
	if err != nil {
		return Reply{}, err
	}

	selected := web.SelectApproved(pending, ids)
	logger.Info("[Approval] Processing approval",
		"chat_id", chat.PublicID,
		"requested", len(ids),
		"pending", len(pending),
		"selected", len(selected),
	)

	docs := make([]common.Document, 0, len(selected))
	for _, item := range selected {
		out, err := g.links.IngestApprovedLink(ctx, chat.ProjectID, userID, item)
		if err != nil {
			g.release(ctx, chat.ID, claimed, false)
			return Reply{}, fmt.Errorf("failed to add web result %s: %w", item.ID, err)
		}
		docs = append(docs, out.Document)
	}

	userMsg, err := g.chats.AddMessage(ctx, chat.ID, ai.RoleUser, command)
	if err != nil {
		g.release(ctx, chat.ID, claimed, false)
		return Reply{}, err
	}
	assistantMsg, err := g.chats.AddMessage(ctx, chat.ID, ai.RoleAssistant, fmt.Sprintf("Added %d web results", len(selected)))
	if err != nil {
		g.release(ctx, chat.ID, claimed, false)
		return Reply{UserMessage: userMsg}, err
	}
	g.release(ctx, chat.ID, claimed, true)
	g.metrics.ApprovalProcessed(len(ids), len(selected))

	return Reply{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Added:            len(selected),
		Approval:         true,
		Documents:        docs,
	}, nil
}

// pendingLinks claims the chat's pending checklist. Chats without an
// approval record fall back to the webLinks embedded in the last assistant
// message. claimed reports whether the record must be released.
func (g *Gate) pendingLinks(ctx context.Context, chatID int64) ([]common.WebLinkChecklistItem, bool, error) {
	links, err := g.approvals.ClaimApproval(ctx, chatID)
	if err == nil {
		return links, true, nil
	}
	if !errors.Is(err, store.ErrApprovalNotPending) {
		return nil, false, err
	}

	_, err = g.approvals.GetApprovalState(ctx, chatID)
	if err == nil {
		// A record exists but nothing is awaiting approval.
		return nil, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	last, err := g.chats.LastAssistantMessage(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	links, _ = web.ParseWebLinks(last.Content)
	return links, false, nil
}

func (g *Gate) release(ctx context.Context, chatID int64, claimed bool, ok bool) {
	if !claimed {
		return
	}
	if err := g.approvals.ReleaseApproval(ctx, chatID, ok); err != nil {
		logger.Error("[Approval] Failed to release approval state", "chat_id", chatID, "ok", ok, "err", err)
	}
}
