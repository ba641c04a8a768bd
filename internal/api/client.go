// Package api holds the thin HTTP collaborator clients for message history
// and the chatroom directory. The engine only consumes their results; all
// persistence and membership logic stays on the backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/roomsync/roomsync/internal/rooms"
	"github.com/roomsync/roomsync/internal/store"
	"github.com/roomsync/roomsync/pkg/envelope"
)

// Client calls the chat backend's REST surface with bearer auth.
type Client struct {
	base   string
	token  string
	selfID int64
	http   *http.Client
}

// Option adjusts a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a client for the backend at base. The token is opaque; the
// self id is only used to derive FromSelf on history entries.
func New(base, token string, selfID int64, opts ...Option) *Client {
	c := &Client{
		base:   base,
		token:  token,
		selfID: selfID,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// messageRecord is the backend's message shape.
type messageRecord struct {
	ID        int64  `json:"ID"`
	UserID    int64  `json:"UserID"`
	RoomID    int64  `json:"RoomID"`
	Content   string `json:"Content"`
	CreatedAt string `json:"CreatedAt"`
}

// History fetches the ordered message history of one room. Entries come
// back confirmed, with a fresh local correlation id for key-ing only.
func (c *Client) History(ctx context.Context, roomID int64) ([]store.ChatMessage, error) {
	var records []messageRecord
	if err := c.get(ctx, fmt.Sprintf("/chatrooms/%d/messages", roomID), &records); err != nil {
		return nil, fmt.Errorf("fetch history for room %d: %w", roomID, err)
	}

	msgs := make([]store.ChatMessage, 0, len(records))
	for _, rec := range records {
		createdAt, _ := time.Parse(time.RFC3339, rec.CreatedAt)
		msgs = append(msgs, store.ChatMessage{
			ID:            rec.ID,
			UserID:        rec.UserID,
			RoomID:        rec.RoomID,
			Content:       rec.Content,
			CreatedAt:     createdAt,
			CorrelationID: envelope.NewCorrelationID(),
			Status:        store.StatusSent,
			FromSelf:      rec.UserID == c.selfID,
		})
	}
	return msgs, nil
}

// roomsPayload wraps directory responses; the backend nests lists under
// a data key.
type roomsPayload struct {
	Data []rooms.Room `json:"data"`
}

// Rooms lists the rooms the user is a member of.
func (c *Client) Rooms(ctx context.Context, username string) ([]rooms.Room, error) {
	var payload roomsPayload
	path := fmt.Sprintf("/memberships/%s/chatrooms", url.PathEscape(username))
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return payload.Data, nil
}

// SearchRooms finds rooms by name keyword.
func (c *Client) SearchRooms(ctx context.Context, keyword string) ([]rooms.Room, error) {
	var payload roomsPayload
	path := "/chatrooms/search?q=" + url.QueryEscape(keyword)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("search rooms: %w", err)
	}
	return payload.Data, nil
}

// CreateRoom creates a room and returns it.
func (c *Client) CreateRoom(ctx context.Context, name string) (*rooms.Room, error) {
	var payload struct {
		Data rooms.Room `json:"data"`
	}
	if err := c.post(ctx, "/chatrooms", map[string]string{"name": name}, &payload); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return &payload.Data, nil
}

// JoinRoom adds the user to a room's membership.
func (c *Client) JoinRoom(ctx context.Context, username string, roomID int64) error {
	body := map[string]any{"username": username, "chatroomid": roomID}
	if err := c.post(ctx, "/memberships/add-user", body, nil); err != nil {
		return fmt.Errorf("join room %d: %w", roomID, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
