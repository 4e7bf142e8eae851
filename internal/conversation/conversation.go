// Package conversation holds the client-side state of one open chat: the
// fetched history plus the caller's outgoing messages while they travel
// through sending, sent, delivered and read.
package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pansan0/saleidia/internal/ws"
	"github.com/pkg/errors"
)

var (
	ErrClosed    = errors.New("conversation closed")
	ErrEmptyText = errors.New("message text is empty")
	ErrNotFailed = errors.New("message is not in failed state")
)

// API is the slice of the chat API a conversation needs; *client.Client
// satisfies it.
type API interface {
	Messages(ctx context.Context, chatID string) ([]models.Message, error)
	SendMessage(ctx context.Context, chatID, senderID, text string) (models.Message, error)
	MarkRead(ctx context.Context, chatID string) error
}

// Item is one rendered row. LocalID is set for messages sent from this
// controller; Err holds the cause of a failed send.
type Item struct {
	models.Message
	LocalID string
	Err     error
}

type entry struct {
	localID  string
	msg      models.Message
	err      error
	seen     int
	inflight bool
}

func (e *entry) confirmed() bool { return e.msg.ID != "" }

type Controller struct {
	api    API
	chatID string
	selfID string
	now    func() time.Time

	onChange func()

	mu      sync.Mutex
	entries []*entry
	nextOrd int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Controller)

// OnChange registers a callback run after every state change, outside the
// controller's lock.
func OnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(api API, chatID, selfID string, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:      api,
		chatID:   chatID,
		selfID:   selfID,
		now:      time.Now,
		onChange: func() {},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load fetches the history and marks the chat read. Local messages that the
// server has not acknowledged stay at the tail.
func (c *Controller) Load(ctx context.Context) error {
	msgs, err := c.api.Messages(ctx, c.chatID)
	if err != nil {
		return errors.Wrap(err, "load messages")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	for _, m := range msgs {
		c.mergeLocked(m)
	}
	c.mu.Unlock()
	c.onChange()

	return errors.Wrap(c.api.MarkRead(ctx, c.chatID), "mark read")
}

// Send queues text and returns at once with the local id of the new message.
// Sends run concurrently, so a slow one never holds back the next.
func (c *Controller) Send(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	e := &entry{
		localID: uuid.NewString(),
		msg: models.Message{
			ChatID:    c.chatID,
			SenderID:  c.selfID,
			Text:      text,
			Timestamp: c.now().UTC(),
			Type:      models.MessageText,
			Status:    models.StatusSending,
		},
		inflight: true,
	}
	c.appendLocked(e)
	c.wg.Add(1)
	c.mu.Unlock()

	c.onChange()
	go c.submit(e)
	return e.localID, nil
}

// Retry resubmits a failed message under the same local id.
func (c *Controller) Retry(localID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	e := c.findLocalLocked(localID)
	if e == nil || e.msg.Status != models.StatusFailed {
		c.mu.Unlock()
		return ErrNotFailed
	}
	e.msg.Status = models.StatusSending
	e.err = nil
	e.inflight = true
	c.wg.Add(1)
	c.mu.Unlock()

	c.onChange()
	go c.submit(e)
	return nil
}

func (c *Controller) submit(e *entry) {
	defer c.wg.Done()

	c.mu.Lock()
	text := e.msg.Text
	c.mu.Unlock()

	msg, err := c.api.SendMessage(c.ctx, c.chatID, c.selfID, text)

	c.mu.Lock()
	e.inflight = false
	switch {
	case err != nil && e.confirmed():
		// a push already carried this message
	case err != nil:
		e.msg.Status = models.StatusFailed
		e.err = err
	default:
		c.adoptLocked(e, msg)
	}
	c.mu.Unlock()
	c.onChange()
}

// adoptLocked gives a local entry its server identity. A pushed copy of the
// same message is dropped. A local entry that claimed it by text goes back to
// waiting for its own acknowledgement.
func (c *Controller) adoptLocked(e *entry, msg models.Message) {
	status := msg.Status
	if e.msg.ID == msg.ID && e.msg.Status.Rank() > status.Rank() {
		status = e.msg.Status
	}
	for i, other := range c.entries {
		if other == e || other.msg.ID != msg.ID {
			continue
		}
		if other.msg.Status.Rank() > status.Rank() {
			status = other.msg.Status
		}
		if other.localID == "" {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		} else {
			other.unclaimLocked()
		}
		break
	}
	e.msg = msg
	e.msg.Status = status
	e.err = nil
}

// ApplyNew merges a message pushed by the server. The caller's own message
// claims the oldest in-flight local copy with the same text.
func (c *Controller) ApplyNew(msg models.Message) {
	if msg.ChatID != c.chatID {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mergeLocked(msg)
	c.mu.Unlock()
	c.onChange()
}

func (c *Controller) mergeLocked(msg models.Message) {
	for _, e := range c.entries {
		if e.msg.ID == msg.ID {
			if msg.Status.Rank() < e.msg.Status.Rank() {
				msg.Status = e.msg.Status
			}
			e.msg = msg
			return
		}
	}
	if msg.SenderID == c.selfID {
		for _, e := range c.entries {
			if !e.confirmed() && e.msg.Status == models.StatusSending && e.msg.Text == msg.Text {
				c.adoptLocked(e, msg)
				return
			}
		}
	}
	c.appendLocked(&entry{msg: msg})
}

// ApplyStatus raises the caller's messages up to update.UpToSeq to the
// reported status. Statuses never move backwards.
func (c *Controller) ApplyStatus(update ws.StatusUpdate) {
	if update.ChatID != c.chatID || update.ReaderID == c.selfID {
		return
	}
	status := models.MessageStatus(update.Status)

	c.mu.Lock()
	changed := false
	for _, e := range c.entries {
		if !e.confirmed() || e.msg.SenderID != c.selfID || e.msg.Seq > update.UpToSeq {
			continue
		}
		if status.Rank() > e.msg.Status.Rank() {
			e.msg.Status = status
			changed = true
		}
	}
	c.mu.Unlock()
	if changed {
		c.onChange()
	}
}

// Messages returns the rows in render order: acknowledged messages by server
// sequence, followed by unacknowledged ones in send order.
func (c *Controller) Messages() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	var done, pending []*entry
	for _, e := range c.entries {
		if e.confirmed() {
			done = append(done, e)
		} else {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(done, func(i, j int) bool { return done[i].msg.Seq < done[j].msg.Seq })
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].seen < pending[j].seen })

	out := make([]Item, 0, len(c.entries))
	for _, e := range append(done, pending...) {
		out = append(out, Item{Message: e.msg, LocalID: e.localID, Err: e.err})
	}
	return out
}

// Close aborts in-flight sends; whatever had no answer ends up failed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	for _, e := range c.entries {
		if e.msg.Status == models.StatusSending {
			e.msg.Status = models.StatusFailed
			e.err = ErrClosed
		}
	}
	c.mu.Unlock()
	c.onChange()
}

func (e *entry) unclaimLocked() {
	e.msg.ID = ""
	e.msg.Seq = 0
	e.msg.Status = models.StatusSending
	if !e.inflight {
		e.msg.Status = models.StatusFailed
	}
}

func (c *Controller) appendLocked(e *entry) {
	e.seen = c.nextOrd
	c.nextOrd++
	c.entries = append(c.entries, e)
}

func (c *Controller) findLocalLocked(localID string) *entry {
	for _, e := range c.entries {
		if e.localID == localID && localID != "" {
			return e
		}
	}
	return nil
}
