package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mid "github.com/OFFIS-RIT/kiwi-research/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-research/pkg/approval"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ingest"
)

const (
	masterKey = "master-secret"
	ownerID   = int64(11)
)

var jwtSecret = []byte("test-signing-key")

type testServer struct {
	handler http.Handler
	store   *fakeStore
	gate    *fakeGate
	ingest  *fakeIngester
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		store:  newFakeStore(),
		gate:   &fakeGate{},
		ingest: &fakeIngester{},
	}
	app := &mid.App{
		Store:    ts.store,
		Gate:     ts.gate,
		Ingest:   ts.ingest,
		Files:    fakeLinker{},
		MaxPDFMB: 1,
		Keyfunc: func(*jwt.Token) (any, error) {
			return jwtSecret, nil
		},
		MasterAPIKey: masterKey,
		MasterUserID: 1,
	}
	ts.handler = NewEcho(app, prometheus.NewRegistry())
	return ts
}

func userToken(t *testing.T, id any) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": id})
	signed, err := token.SignedString(jwtSecret)
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seedProject(t *testing.T, owner int64) common.Project {
	t.Helper()
	p, err := ts.store.CreateProject(t.Context(), common.Project{Name: "Batteries", OwnerID: owner})
	require.NoError(t, err)
	return p
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/projects", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/projects", masterKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/projects", userToken(t, "11"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/projects", userToken(t, "eleven"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProjects(t *testing.T) {
	ts := newTestServer(t)
	token := userToken(t, float64(ownerID))

	rec := ts.do(t, http.MethodPost, "/api/projects", token, map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/projects", token, map[string]string{"name": "Batteries"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created common.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, ownerID, created.OwnerID)

	rec = ts.do(t, http.MethodGet, "/api/projects", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []common.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestProjectAccess(t *testing.T) {
	ts := newTestServer(t)
	p := ts.seedProject(t, ownerID)

	rec := ts.do(t, http.MethodGet, "/api/projects/1/chats", userToken(t, float64(99)), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/projects/42/chats", userToken(t, float64(ownerID)), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/projects/abc/chats", userToken(t, float64(ownerID)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The master key acts as admin.
	rec = ts.do(t, http.MethodGet, "/api/projects/1/chats", masterKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), p.ID)
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProject(t, ownerID)
	token := userToken(t, float64(ownerID))

	rec := ts.do(t, http.MethodPost, "/api/projects/1/chats", token, map[string]string{"title": ""})
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat common.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Equal(t, "New conversation", chat.Title)
	assert.NotEmpty(t, chat.PublicID)

	ts.gate.reply = approval.Reply{
		AssistantMessage: common.ChatMessage{Role: "assistant", Content: "Added 1 web results"},
		Approval:         true,
		Added:            1,
	}
	rec = ts.do(t, http.MethodPost, "/api/projects/1/chats/"+chat.PublicID+"/messages", token,
		map[string]string{"content": "  /approve-web-links 0-0  "})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.gate.calls, 1)
	assert.Equal(t, "/approve-web-links 0-0", ts.gate.calls[0].content)
	assert.Equal(t, ownerID, ts.gate.calls[0].userID)
	assert.Equal(t, int64(1), ts.gate.calls[0].chat.ProjectID)

	var reply approval.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, 1, reply.Added)

	rec = ts.do(t, http.MethodPost, "/api/projects/1/chats/missing/messages", token,
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/projects/1/chats/"+chat.PublicID+"/messages", token,
		map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.gate.err = errors.New("model down")
	rec = ts.do(t, http.MethodPost, "/api/projects/1/chats/"+chat.PublicID+"/messages", token,
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "message")

	ts.gate.err = approval.ErrChatBusy
	rec = ts.do(t, http.MethodPost, "/api/projects/1/chats/"+chat.PublicID+"/messages", token,
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetChat(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProject(t, ownerID)
	token := userToken(t, float64(ownerID))
	ctx := t.Context()

	chat, err := ts.store.CreateChat(ctx, common.Chat{ProjectID: 1, UserID: ownerID, Title: "c"})
	require.NoError(t, err)
	_, err = ts.store.AddMessage(ctx, chat.ID, "user", "search")
	require.NoError(t, err)
	_, err = ts.store.AddMessage(ctx, chat.ID, "assistant", `Found.

{"webLinks":[{"id":"0-0","url":"https://a.example","title":"A","summary":"s"}]}`)
	require.NoError(t, err)
	require.NoError(t, ts.store.EnterAwaitingApproval(ctx, chat.ID, nil))

	rec := ts.do(t, http.MethodGet, "/api/projects/1/chats/"+chat.PublicID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status   common.ApprovalStatus `json:"status"`
		Messages []struct {
			Role     string                        `json:"role"`
			WebLinks []common.WebLinkChecklistItem `json:"webLinks"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, common.ApprovalAwaiting, resp.Status)
	require.Len(t, resp.Messages, 2)
	require.Len(t, resp.Messages[1].WebLinks, 1)
	assert.Equal(t, "https://a.example", resp.Messages[1].WebLinks[0].URL)

	// Another user's chat is hidden even from inside the project.
	other, err := ts.store.CreateChat(ctx, common.Chat{ProjectID: 1, UserID: 77, Title: "o"})
	require.NoError(t, err)
	rec = ts.do(t, http.MethodGet, "/api/projects/1/chats/"+other.PublicID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProject(t, ownerID)
	token := userToken(t, float64(ownerID))
	ts.ingest.outcome = ingest.Outcome{Document: common.Document{ID: "doc-1"}}

	rec := ts.do(t, http.MethodPost, "/api/projects/1/documents", token,
		map[string]any{"title": "Notes", "type": "text", "content": "some text"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.ingest.texts, 1)
	assert.Equal(t, int64(1), ts.ingest.texts[0].ProjectID)

	rec = ts.do(t, http.MethodPost, "/api/projects/1/documents", token,
		map[string]any{"type": "web", "url": "https://a.example/page"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.ingest.webs, 1)
	assert.Equal(t, "https://a.example/page", ts.ingest.webs[0].URL)

	rec = ts.do(t, http.MethodPost, "/api/projects/1/documents", token,
		map[string]any{"type": "web"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/projects/1/documents", token,
		map[string]any{"title": "x", "type": "audio", "content": "y"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.ingest.err = errors.New("model down")
	rec = ts.do(t, http.MethodPost, "/api/projects/1/documents", token,
		map[string]any{"title": "Notes", "type": "text", "content": "some text"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "doc-1")
}

func TestUploadPDF(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProject(t, ownerID)

	upload := func(name string, data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		require.NoError(t, w.WriteField("title", "Paper"))
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/projects/1/documents/pdf", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+userToken(t, float64(ownerID)))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("paper.pdf", []byte("%PDF-1.7"))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.ingest.pdfs, 1)
	assert.Equal(t, "Paper", ts.ingest.pdfs[0].Title)
	assert.Equal(t, "paper.pdf", ts.ingest.pdfs[0].FileName)
	assert.Equal(t, []byte("%PDF-1.7"), ts.ingest.pdfs[0].Data)

	rec = upload("notes.txt", []byte("hi"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("big.pdf", bytes.Repeat([]byte("a"), 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProject(t, ownerID)
	token := userToken(t, float64(ownerID))
	_, err := ts.store.CreateDocument(t.Context(), common.Document{
		ID:        "doc-9",
		ProjectID: 1,
		Title:     "Paper",
		Type:      common.DocumentTypePDF,
		FileKey:   "projects/1/documents/x.pdf",
	})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/projects/1/documents/doc-9", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"downloadUrl":"https://files.example/projects/1/documents/x.pdf"`)

	rec = ts.do(t, http.MethodGet, "/api/projects/1/documents/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/projects/1/documents", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doc-9")
}

func TestGraphRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProject(t, ownerID)
	token := userToken(t, float64(ownerID))

	rec := ts.do(t, http.MethodGet, "/api/projects/1/graph?label=ion&type=Material", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.store.queries, 1)
	assert.Equal(t, common.GraphQuery{ProjectID: 1, Label: "ion", Type: "Material"}, ts.store.queries[0])

	rec = ts.do(t, http.MethodGet, "/api/projects/1/graph?type="+strings.Repeat("x", 51), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/projects/1/web-results", token, []common.WebSearchOutput{{
		Query:   "q",
		Results: []common.WebSearchResult{{URL: "https://a.example", Content: "c", Score: 0.9}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.ingest.folded, 1)
	assert.Len(t, ts.ingest.folded[0][0].Results, 1)

	rec = ts.do(t, http.MethodPost, "/api/projects/1/web-results", token, map[string]string{"not": "a list"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
