// Package chatlist keeps the client-side chat directory: previews ordered by
// pin and recency, unread badges and name search.
package chatlist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pansan0/saleidia/internal/client"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pkg/errors"
)

const PreviewLength = 45

// Source fetches the directory; *client.Client satisfies it.
type Source interface {
	Chats(ctx context.Context, userID, query string) (client.ChatList, error)
}

type Controller struct {
	src    Source
	userID string

	mu      sync.RWMutex
	chats   []models.ChatPreview
	unread  int
	loaded  bool
	lastErr error
}

func New(src Source, userID string) *Controller {
	return &Controller{src: src, userID: userID}
}

// Refresh reloads the directory. On failure the previous list stays visible
// and Err reports the cause.
func (c *Controller) Refresh(ctx context.Context) error {
	list, err := c.src.Chats(ctx, c.userID, "")

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = errors.Wrap(err, "refresh chats")
		return c.lastErr
	}
	c.chats = list.Chats
	c.unread = list.TotalUnread
	c.loaded = true
	c.lastErr = nil
	return nil
}

// Visible returns the chats whose counterpart name contains query
// (case-insensitive), pinned first, then most recent.
func (c *Controller) Visible(query string) []models.ChatPreview {
	q := strings.ToLower(strings.TrimSpace(query))

	c.mu.RLock()
	out := make([]models.ChatPreview, 0, len(c.chats))
	for _, p := range c.chats {
		if q == "" || strings.Contains(strings.ToLower(p.Participant.Name), q) {
			out = append(out, p)
		}
	}
	c.mu.RUnlock()

	models.SortPreviews(out)
	return out
}

// TotalUnread counts unread messages over every chat, filtered or not.
func (c *Controller) TotalUnread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// Loaded reports whether at least one refresh succeeded.
func (c *Controller) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// ApplyNew moves a pushed message into its chat preview. It reports false
// when the chat is not in the list yet and a Refresh is needed.
func (c *Controller) ApplyNew(msg models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.chats {
		p := &c.chats[i]
		if p.ID != msg.ChatID {
			continue
		}
		if p.LastMessage != nil && p.LastMessage.ID == msg.ID {
			return true
		}
		p.LastMessage = &models.LastMessage{
			ID:        msg.ID,
			Text:      msg.Text,
			SenderID:  msg.SenderID,
			Timestamp: msg.Timestamp,
			Status:    msg.Status,
		}
		if msg.Timestamp.After(p.UpdatedAt) {
			p.UpdatedAt = msg.Timestamp
		}
		if msg.SenderID != c.userID {
			p.UnreadCount++
			c.unread++
		}
		return true
	}
	return false
}

// MarkedRead clears the badge of chatID after the chat was opened.
func (c *Controller) MarkedRead(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			c.unread -= c.chats[i].UnreadCount
			c.chats[i].UnreadCount = 0
			return
		}
	}
}

// Badge renders an unread count; zero renders nothing.
func Badge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	default:
		return fmt.Sprint(n)
	}
}

// Truncate cuts text to n characters and appends "..." when it was longer.
func Truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

// Age renders how long ago t was, relative to now, in the chat list's short
// form.
func Age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	default:
		return t.Format("Jan 2")
	}
}
