package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"unichat/internal/logging"
	"unichat/internal/types"
)

const defaultTimeout = 10 * time.Second

// TokenSource supplies the bearer token for authenticated requests.
// Acquiring and refreshing the token is the caller's concern.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

var ErrNotLoggedIn = errors.New("no access token; run login first")

type Client struct {
	baseURL     string
	tokens      TokenSource
	http        *http.Client
	stream      *http.Client
	logger      logging.Logger
	streamDebug bool
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the transport used for JSON calls and streams.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient == nil {
			return
		}
		c.http = httpClient
		c.stream = &http.Client{Transport: httpClient.Transport}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStreamDebug logs every raw completion request at debug level.
func WithStreamDebug(enabled bool) Option {
	return func(c *Client) {
		c.streamDebug = enabled
	}
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens:  tokens,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		// Streams run until the backend finishes or the caller cancels.
		stream: &http.Client{},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", errors.New("username is required")
	}
	var resp LoginResponse
	req := LoginRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/login", req, false, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", errors.New("login response did not include a token")
	}
	return resp.Token, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	var resp []conversationDTO
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, true, &resp); err != nil {
		return nil, err
	}
	out := make([]types.Conversation, 0, len(resp))
	for _, item := range resp {
		out = append(out, item.toConversation())
	}
	return out, nil
}

// PersistMessage stores msg under conversationID and returns the id the
// backend filed it under. A pending id asks the backend to create one.
func (c *Client) PersistMessage(ctx context.Context, conversationID types.ConversationID, msg types.Message) (types.ConversationID, error) {
	req := PersistMessageRequest{
		ID:             msg.ID,
		Role:           msg.Role,
		Content:        msg.Content,
		ConversationID: conversationID,
	}
	var resp PersistMessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/messages", req, true, &resp); err != nil {
		return types.PendingConversation, err
	}
	return resp.ConversationID, nil
}

// ConversationMessages fetches the full message list of a stored
// conversation together with the agent kind it was held with.
func (c *Client) ConversationMessages(ctx context.Context, id types.ConversationID) (*ConversationMessages, error) {
	var resp conversationMessagesDTO
	if err := c.doJSON(ctx, http.MethodGet, conversationPath(id)+"/messages", nil, true, &resp); err != nil {
		return nil, err
	}
	out := &ConversationMessages{
		Messages:  make([]types.Message, 0, len(resp.Messages)),
		AgentType: resp.AgentType,
	}
	for _, msg := range resp.Messages {
		out.Messages = append(out.Messages, msg.toMessage())
	}
	return out, nil
}

func (c *Client) RenameConversation(ctx context.Context, id types.ConversationID, title string) error {
	req := RenameConversationRequest{Title: title, IsTitleEdited: true}
	return c.doJSON(ctx, http.MethodPut, conversationPath(id), req, true, nil)
}

func (c *Client) DeleteConversation(ctx context.Context, id types.ConversationID) error {
	return c.doJSON(ctx, http.MethodDelete, conversationPath(id), nil, true, nil)
}

func (c *Client) ClearConversations(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/conversations", nil, true, nil)
}

// OpenCompletion starts a streaming completion. The caller owns the
// returned body and must close it; cancelling ctx aborts pending reads.
func (c *Client) OpenCompletion(ctx context.Context, req CompletionRequest) (io.ReadCloser, error) {
	req.Stream = true
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if err := c.authorize(ctx, httpReq); err != nil {
		return nil, err
	}
	if c.streamDebug {
		c.logger.Debug("completion open", logging.F("model", req.Model), logging.F("messages", len(req.Messages)))
	}

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "POST /chat/completions", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		if c.streamDebug {
			c.logger.Debug("completion rejected", logging.F("status", resp.StatusCode))
		}
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, requireAuth bool, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth {
		if err := c.authorize(ctx, req); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return ErrNotLoggedIn
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return ErrNotLoggedIn
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func conversationPath(id types.ConversationID) string {
	return "/conversations/" + strconv.FormatInt(int64(id), 10)
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	switch {
	case payload.Message != "":
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
	case payload.Error != "":
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// TransportError is a connection-level failure: the backend was not
// reached or the connection dropped.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
