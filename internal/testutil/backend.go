package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"unichat/internal/types"
)

const (
	RouteLogin        = "POST /login"
	RouteList         = "GET /conversations"
	RouteClear        = "DELETE /conversations"
	RoutePersist      = "POST /messages"
	RouteMessages     = "GET /conversations/{id}/messages"
	RouteRename       = "PUT /conversations/{id}"
	RouteDelete       = "DELETE /conversations/{id}"
	RouteCompletion   = "POST /chat/completions"
	DefaultTestToken  = "test-token"
	DefaultTestUser   = "student"
	DefaultTestSecret = "secret"
)

// CompletionRequest mirrors the body the client posts to the completion
// endpoint.
type CompletionRequest struct {
	Model       string                    `json:"model"`
	Temperature float64                   `json:"temperature"`
	Stream      bool                      `json:"stream"`
	Messages    []types.CompletionMessage `json:"messages"`
}

type PersistRequest struct {
	ID             string               `json:"id"`
	Role           types.Role           `json:"role"`
	Content        string               `json:"content"`
	ConversationID types.ConversationID `json:"conversation_id"`
}

type storedConversation struct {
	summary  types.Conversation
	messages []types.Message
}

// Backend is an in-memory implementation of the chat backend contract.
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	token         string
	conversations []*storedConversation
	nextID        types.ConversationID
	now           func() time.Time
	defaultAgent  types.AgentKind
	failures      map[string]int
	calls         map[string]int
	persisted     []PersistRequest
	completions   []CompletionRequest
	completion    http.HandlerFunc
	beforePersist func(PersistRequest)
}

func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		token:        DefaultTestToken,
		nextID:       1,
		now:          time.Now,
		defaultAgent: types.AgentGeneral,
		failures:     map[string]int{},
		calls:        map[string]int{},
	}
	b.completion = StreamRecords(`{"choices":[{"delta":{"content":"ok"}}]}`)
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) URL() string {
	return b.Server.URL
}

func (b *Backend) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// Fail makes route answer with status until cleared with status 0.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// Calls reports how many requests route has served, failures included.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// SetCompletion replaces the completion handler.
func (b *Backend) SetCompletion(handler http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completion = handler
}

// SetBeforePersist installs a hook run inside the persist handler before it
// answers. Tests block in it to control response timing.
func (b *Backend) SetBeforePersist(hook func(PersistRequest)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beforePersist = hook
}

func (b *Backend) SetDefaultAgent(kind types.AgentKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaultAgent = kind
}

// SetNextID sets the id given to the next created conversation.
func (b *Backend) SetNextID(id types.ConversationID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID = id
}

func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Seed stores a conversation with messages and returns its id.
func (b *Backend) Seed(title string, agent types.AgentKind, createdAt time.Time, messages ...types.Message) types.ConversationID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.conversations = append(b.conversations, &storedConversation{
		summary: types.Conversation{
			ID:        id,
			Title:     title,
			CreatedAt: createdAt,
			AgentType: agent,
		},
		messages: types.CloneMessages(messages),
	})
	return id
}

func (b *Backend) Conversations() []types.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Conversation, 0, len(b.conversations))
	for _, conv := range b.conversations {
		out = append(out, conv.summary)
	}
	return out
}

func (b *Backend) Messages(id types.ConversationID) []types.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if conv := b.find(id); conv != nil {
		return types.CloneMessages(conv.messages)
	}
	return nil
}

func (b *Backend) Persisted() []PersistRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PersistRequest{}, b.persisted...)
}

func (b *Backend) CompletionRequests() []CompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]CompletionRequest{}, b.completions...)
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Post("/login", b.track(RouteLogin, b.handleLogin))
	r.Group(func(r chi.Router) {
		r.Use(b.requireToken)
		r.Get("/conversations", b.track(RouteList, b.handleList))
		r.Delete("/conversations", b.track(RouteClear, b.handleClear))
		r.Post("/messages", b.track(RoutePersist, b.handlePersist))
		r.Get("/conversations/{id}/messages", b.track(RouteMessages, b.handleMessages))
		r.Put("/conversations/{id}", b.track(RouteRename, b.handleRename))
		r.Delete("/conversations/{id}", b.track(RouteDelete, b.handleDelete))
		r.Post("/chat/completions", b.track(RouteCompletion, b.handleCompletion))
	})
	return r
}

func (b *Backend) track(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[route]++
		status := b.failures[route]
		b.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s failed", route)})
			return
		}
		next(w, r)
	}
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token != b.Token() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if req.Username != DefaultTestUser || req.Password != DefaultTestSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": b.Token()})
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.Conversations())
}

func (b *Backend) handleClear(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.conversations = nil
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *Backend) handlePersist(w http.ResponseWriter, r *http.Request) {
	var req PersistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	b.mu.Lock()
	hook := b.beforePersist
	b.mu.Unlock()
	if hook != nil {
		hook(req)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.persisted = append(b.persisted, req)
	conv := b.find(req.ConversationID)
	if conv == nil {
		if !req.ConversationID.Pending() {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
			return
		}
		conv = &storedConversation{summary: types.Conversation{
			ID:        b.nextID,
			Title:     req.Content,
			CreatedAt: b.now(),
			AgentType: b.defaultAgent,
		}}
		b.nextID++
		b.conversations = append(b.conversations, conv)
	}
	conv.messages = append(conv.messages, types.Message{
		ID:      req.ID,
		Role:    req.Role,
		Content: req.Content,
	})
	writeJSON(w, http.StatusOK, map[string]types.ConversationID{"conversation_id": conv.summary.ID})
}

func (b *Backend) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationParam(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	conv := b.find(id)
	if conv == nil {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	type wireMessage struct {
		ID      int        `json:"id"`
		Role    types.Role `json:"role"`
		Content string     `json:"content"`
	}
	messages := make([]wireMessage, 0, len(conv.messages))
	for i, msg := range conv.messages {
		messages = append(messages, wireMessage{ID: i + 1, Role: msg.Role, Content: msg.Content})
	}
	agent := conv.summary.AgentType
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "agentType": agent})
}

func (b *Backend) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Title         string `json:"title"`
		IsTitleEdited bool   `json:"isTitleEdited"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	conv := b.find(id)
	if conv == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	conv.summary.Title = req.Title
	writeJSON(w, http.StatusOK, conv.summary)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationParam(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.conversations[:0]
	for _, conv := range b.conversations {
		if conv.summary.ID != id {
			kept = append(kept, conv)
		}
	}
	b.conversations = kept
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *Backend) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	b.mu.Lock()
	b.completions = append(b.completions, req)
	handler := b.completion
	b.mu.Unlock()
	handler(w, r)
}

func (b *Backend) find(id types.ConversationID) *storedConversation {
	for _, conv := range b.conversations {
		if conv.summary.ID == id {
			return conv
		}
	}
	return nil
}

func conversationParam(w http.ResponseWriter, r *http.Request) (types.ConversationID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
		return 0, false
	}
	return types.ConversationID(id), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
