// Package client is a typed HTTP client for the chat API, used by the
// conversation and chat list controllers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pkg/errors"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 for transport errors.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Config struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type Registration struct {
	User     models.User       `json:"user"`
	AuthUser identity.AuthUser `json:"authUser"`
}

type LoginResult struct {
	Session identity.Session `json:"session"`
	User    *models.User     `json:"user"`
}

type ChatList struct {
	Chats       []models.ChatPreview `json:"chats"`
	TotalUnread int                  `json:"totalUnread"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) Signup(ctx context.Context, email, password string, data models.UserData) (Registration, error) {
	var out Registration
	err := c.do(ctx, http.MethodPost, "/signup", c.anonKey, map[string]any{
		"email":    email,
		"password": password,
		"userData": data,
	}, &out)
	return out, err
}

// Login signs in and keeps the access token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/login", c.anonKey, map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	c.SetToken(out.Session.AccessToken)
	return out, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(userID), c.Token(), nil, &out)
	return out.User, err
}

func (c *Client) UpdateUser(ctx context.Context, userID string, patch models.ProfilePatch) (models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPut, "/user/"+url.PathEscape(userID), c.Token(), patch, &out)
	return out.User, err
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/search/users?q="+url.QueryEscape(query), c.Token(), nil, &out)
	return out.Users, err
}

func (c *Client) Friends(ctx context.Context, userID string) ([]models.Friend, error) {
	var out struct {
		Friends []models.Friend `json:"friends"`
	}
	err := c.do(ctx, http.MethodGet, "/friends/"+url.PathEscape(userID), c.Token(), nil, &out)
	return out.Friends, err
}

func (c *Client) SendFriendRequest(ctx context.Context, fromUserID, toUserID string) (models.FriendRequest, error) {
	var out struct {
		Request models.FriendRequest `json:"request"`
	}
	err := c.do(ctx, http.MethodPost, "/friend-request", c.Token(), map[string]string{
		"fromUserId": fromUserID,
		"toUserId":   toUserID,
	}, &out)
	return out.Request, err
}

func (c *Client) PendingRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	var out struct {
		Requests []models.FriendRequest `json:"requests"`
	}
	err := c.do(ctx, http.MethodGet, "/friend-requests/"+url.PathEscape(userID), c.Token(), nil, &out)
	return out.Requests, err
}

func (c *Client) RespondFriendRequest(ctx context.Context, requestID string, accept bool) (models.FriendRequest, error) {
	var out struct {
		Request models.FriendRequest `json:"request"`
	}
	path := "/friend-request/" + url.PathEscape(requestID) + "/respond"
	err := c.do(ctx, http.MethodPost, path, c.Token(), map[string]bool{"accept": accept}, &out)
	return out.Request, err
}

func (c *Client) CreateChat(ctx context.Context, userID1, userID2 string) (models.Chat, error) {
	var out struct {
		Chat models.Chat `json:"chat"`
	}
	err := c.do(ctx, http.MethodPost, "/chat", c.Token(), map[string]string{
		"userId1": userID1,
		"userId2": userID2,
	}, &out)
	return out.Chat, err
}

func (c *Client) Chats(ctx context.Context, userID, query string) (ChatList, error) {
	path := "/chats/" + url.PathEscape(userID)
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out ChatList
	err := c.do(ctx, http.MethodGet, path, c.Token(), nil, &out)
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/read", c.Token(), nil, nil)
}

func (c *Client) SetPinned(ctx context.Context, chatID string, pinned bool) error {
	return c.do(ctx, http.MethodPut, "/chats/"+url.PathEscape(chatID)+"/pin", c.Token(), map[string]bool{"pinned": pinned}, nil)
}

func (c *Client) SendMessage(ctx context.Context, chatID, senderID, text string) (models.Message, error) {
	var out struct {
		Message models.Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/message", c.Token(), map[string]string{
		"chatId":   chatID,
		"senderId": senderID,
		"text":     text,
	}, &out)
	return out.Message, err
}

func (c *Client) Messages(ctx context.Context, chatID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(chatID), c.Token(), nil, &out)
	return out.Messages, err
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, out), "decode response")
}
