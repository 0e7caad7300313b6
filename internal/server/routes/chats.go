package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/kiwi-research/internal/server/middleware"
	serverutil "github.com/OFFIS-RIT/kiwi-research/internal/server/util"
	"github.com/OFFIS-RIT/kiwi-research/pkg/approval"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
)

func CreateChatHandler(c echo.Context) error {
	type createChatBody struct {
		Title string `json:"title" validate:"max=200"`
	}

	data := new(createChatBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	cc := c.(*middleware.AppContext)
	chat, err := cc.App.Store.CreateChat(c.Request().Context(), common.Chat{
		ProjectID: cc.Project.ID,
		UserID:    cc.User.UserID,
		Title:     serverutil.BuildConversationTitle(data.Title),
	})
	if err != nil {
		logger.Error("[Server] Failed to create chat", "project_id", cc.Project.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusCreated, chat)
}

func GetChatsHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	chats, err := cc.App.Store.ListChats(c.Request().Context(), cc.Project.ID, cc.User.UserID)
	if err != nil {
		logger.Error("[Server] Failed to list chats", "project_id", cc.Project.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, chats)
}

func GetChatHandler(c echo.Context) error {
	type getChatResponse struct {
		Chat     common.Chat              `json:"chat"`
		Status   common.ApprovalStatus    `json:"status"`
		Messages []serverutil.MessageView `json:"messages"`
	}

	cc := c.(*middleware.AppContext)
	ctx := c.Request().Context()

	chat, ok, err := loadChat(cc)
	if !ok {
		return err
	}

	messages, err := cc.App.Store.ListMessages(ctx, chat.ID)
	if err != nil {
		logger.Error("[Server] Failed to list chat messages", "chat_id", chat.PublicID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	status := common.ApprovalNormal
	state, err := cc.App.Store.GetApprovalState(ctx, chat.ID)
	switch {
	case err == nil:
		status = state.Status
	case !errors.Is(err, store.ErrNotFound):
		logger.Error("[Server] Failed to load approval state", "chat_id", chat.PublicID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, getChatResponse{
		Chat:     chat,
		Status:   status,
		Messages: serverutil.ToMessageViews(messages),
	})
}

// PostMessageHandler runs one chat turn. Content starting with the approve
// command is routed to the approval flow instead of the agent.
func PostMessageHandler(c echo.Context) error {
	type postMessageBody struct {
		Content string `json:"content" validate:"required"`
	}

	data := new(postMessageBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	data.Content = strings.TrimSpace(data.Content)
	if data.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "content is required"})
	}

	cc := c.(*middleware.AppContext)
	chat, ok, err := loadChat(cc)
	if !ok {
		return err
	}

	reply, err := cc.App.Gate.HandleMessage(c.Request().Context(), chat, cc.User.UserID, data.Content)
	if errors.Is(err, approval.ErrChatBusy) {
		return c.JSON(http.StatusConflict, map[string]string{"message": "Chat is processing another message"})
	}
	if err != nil {
		logger.Error("[Server] Failed to handle chat message", "chat_id", chat.PublicID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to process message"})
	}

	return c.JSON(http.StatusOK, reply)
}

// loadChat resolves :chat_id within the current project. Chats of other
// users are reported as missing. When ok is false the response has been
// written and err is what the handler returns.
func loadChat(cc *middleware.AppContext) (chat common.Chat, ok bool, err error) {
	chatID := strings.TrimSpace(cc.Param("chat_id"))
	if chatID == "" {
		return common.Chat{}, false, cc.JSON(http.StatusBadRequest, map[string]string{"message": "chat_id is required"})
	}

	chat, err = cc.App.Store.GetChat(cc.Request().Context(), cc.Project.ID, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return common.Chat{}, false, cc.JSON(http.StatusNotFound, map[string]string{"message": "Chat not found"})
	}
	if err != nil {
		logger.Error("[Server] Failed to load chat", "chat_id", chatID, "err", err)
		return common.Chat{}, false, cc.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if chat.UserID != cc.User.UserID && !middleware.IsAdmin(cc.User) {
		return common.Chat{}, false, cc.JSON(http.StatusNotFound, map[string]string{"message": "Chat not found"})
	}
	return chat, true, nil
}
