package chat

import (
	"context"
	"strings"

	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pansan0/saleidia/internal/ws"
	"github.com/pkg/errors"
)

type Chats struct {
	*core
	friends  *Friends
	profiles *Profiles
}

// ChatList is the chat directory as seen by one user.
type ChatList struct {
	Chats       []models.ChatPreview `json:"chats"`
	TotalUnread int                  `json:"totalUnread"`
}

// Create opens the chat between a and b, or returns it when it already exists.
// The caller must be one of the two and they must be friends.
func (c *Chats) Create(ctx context.Context, actorID, a, b string) (models.Chat, error) {
	if a == "" || b == "" {
		return models.Chat{}, errors.Wrap(apperr.ErrValidation, "both participants are required")
	}
	if a == b {
		return models.Chat{}, errors.Wrap(apperr.ErrValidation, "a chat needs two different participants")
	}
	if actorID != a && actorID != b {
		return models.Chat{}, errors.Wrap(apperr.ErrUnauthorized, "caller is not a participant")
	}
	friends, err := c.friends.AreFriends(ctx, a, b)
	if err != nil {
		return models.Chat{}, err
	}
	if !friends {
		return models.Chat{}, apperr.ErrNotFriends
	}

	lo, hi := orderedPair(a, b)
	chat := models.Chat{
		ID:           ChatID(a, b),
		Participants: []string{lo, hi},
		CreatedAt:    c.timestamp(),
	}
	created, err := kv.SetJSONIfAbsent(ctx, c.store, chatInfoKey(chat.ID), chat)
	if err != nil {
		return models.Chat{}, err
	}
	if !created {
		if chat, err = c.Get(ctx, chat.ID); err != nil {
			return models.Chat{}, err
		}
	}

	// also repairs member records missing after an interrupted create
	for _, uid := range chat.Participants {
		m := models.ChatMember{
			ChatID:   chat.ID,
			UserID:   uid,
			PeerID:   chat.Peer(uid),
			JoinedAt: chat.CreatedAt,
		}
		if _, err := kv.SetJSONIfAbsent(ctx, c.store, chatMemberKey(uid, chat.ID), m); err != nil {
			return models.Chat{}, err
		}
	}
	return chat, nil
}

func (c *Chats) Get(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	ok, err := kv.GetJSON(ctx, c.store, chatInfoKey(chatID), &chat)
	if err != nil {
		return models.Chat{}, err
	}
	if !ok {
		return models.Chat{}, errors.Wrapf(apperr.ErrNotFound, "chat %s", chatID)
	}
	return chat, nil
}

// Participant loads the chat and checks userID belongs to it: ErrNotFound
// for an unknown chat, ErrUnauthorized for an outsider.
func (c *Chats) Participant(ctx context.Context, chatID, userID string) (models.Chat, error) {
	chat, err := c.Get(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(userID) {
		return models.Chat{}, errors.Wrapf(apperr.ErrUnauthorized, "not a participant of chat %s", chatID)
	}
	return chat, nil
}

func (c *Chats) member(ctx context.Context, chat models.Chat, userID string) (models.ChatMember, error) {
	var m models.ChatMember
	ok, err := kv.GetJSON(ctx, c.store, chatMemberKey(userID, chat.ID), &m)
	if err != nil {
		return models.ChatMember{}, err
	}
	if !ok {
		m = models.ChatMember{ChatID: chat.ID, UserID: userID, PeerID: chat.Peer(userID), JoinedAt: chat.CreatedAt}
	}
	return m, nil
}

// updateMember runs fn on the member record under the record lock.
// fn reports whether anything changed.
func (c *Chats) updateMember(ctx context.Context, chat models.Chat, userID string, fn func(*models.ChatMember) bool) (models.ChatMember, error) {
	unlock := c.locks.lock(chatMemberKey(userID, chat.ID))
	defer unlock()

	m, err := c.member(ctx, chat, userID)
	if err != nil {
		return models.ChatMember{}, err
	}
	if !fn(&m) {
		return m, nil
	}
	if err := kv.SetJSON(ctx, c.store, chatMemberKey(userID, chat.ID), m); err != nil {
		return models.ChatMember{}, err
	}
	return m, nil
}

// MarkRead moves the caller's read marker to the newest message in the chat and
// tells the counterpart its messages were read.
func (c *Chats) MarkRead(ctx context.Context, actorID, chatID string) error {
	chat, err := c.Participant(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	msgs, err := c.loadLog(ctx, chatID)
	if err != nil {
		return err
	}
	upTo := maxSeq(msgs)
	now := c.timestamp()

	advanced := false
	_, err = c.updateMember(ctx, chat, actorID, func(m *models.ChatMember) bool {
		changed := m.LastReadAt == nil
		if upTo > m.LastReadSeq {
			m.LastReadSeq = upTo
			advanced, changed = true, true
		}
		if upTo > m.DeliveredSeq {
			m.DeliveredSeq = upTo
		}
		m.LastReadAt = &now
		return changed || advanced
	})
	if err != nil {
		return err
	}

	if advanced {
		c.notify([]string{chat.Peer(actorID)}, ws.EventMessageStatus, ws.StatusUpdate{
			ChatID:   chatID,
			ReaderID: actorID,
			UpToSeq:  upTo,
			Status:   string(models.StatusRead),
		})
	}
	return nil
}

// SetPinned stores the caller's pin preference; pins are per user.
func (c *Chats) SetPinned(ctx context.Context, actorID, chatID string, pinned bool) error {
	chat, err := c.Participant(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	now := c.timestamp()
	_, err = c.updateMember(ctx, chat, actorID, func(m *models.ChatMember) bool {
		if m.Pinned == pinned {
			return false
		}
		m.Pinned = pinned
		if pinned {
			m.PinnedAt = &now
		} else {
			m.PinnedAt = nil
		}
		return true
	})
	return err
}

// List returns the previews of every chat userID takes part in: pinned chats
// first, then by last activity, newest first. A non-empty query keeps only
// chats whose counterpart name contains it.
func (c *Chats) List(ctx context.Context, actorID, userID, query string) (ChatList, error) {
	if actorID != userID {
		return ChatList{}, errors.Wrap(apperr.ErrUnauthorized, "cannot list another user's chats")
	}
	members, err := kv.ListJSON[models.ChatMember](ctx, c.store, chatMemberPrefix(userID))
	if err != nil {
		return ChatList{}, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := ChatList{Chats: make([]models.ChatPreview, 0, len(members))}
	for _, m := range members {
		p, err := c.preview(ctx, m)
		if err != nil {
			return ChatList{}, err
		}
		out.TotalUnread += p.UnreadCount
		if q != "" && !strings.Contains(strings.ToLower(p.Participant.Name), q) {
			continue
		}
		out.Chats = append(out.Chats, p)
	}
	models.SortPreviews(out.Chats)
	return out, nil
}

func (c *Chats) preview(ctx context.Context, m models.ChatMember) (models.ChatPreview, error) {
	peer, err := c.profiles.participant(ctx, m.PeerID)
	if err != nil {
		return models.ChatPreview{}, err
	}
	msgs, err := c.loadLog(ctx, m.ChatID)
	if err != nil {
		return models.ChatPreview{}, err
	}

	p := models.ChatPreview{
		ID:          m.ChatID,
		Participant: peer,
		IsPinned:    m.Pinned,
		UpdatedAt:   m.JoinedAt,
	}
	for _, msg := range msgs {
		if msg.SenderID != m.UserID && msg.Seq > m.LastReadSeq {
			p.UnreadCount++
		}
	}
	if len(msgs) == 0 {
		return p, nil
	}

	last := msgs[len(msgs)-1]
	var peerMember models.ChatMember
	if last.SenderID == m.UserID {
		if _, err := kv.GetJSON(ctx, c.store, chatMemberKey(m.PeerID, m.ChatID), &peerMember); err != nil {
			return models.ChatPreview{}, err
		}
	}
	p.LastMessage = &models.LastMessage{
		ID:        last.ID,
		Text:      last.Text,
		SenderID:  last.SenderID,
		Timestamp: last.Timestamp,
		Status:    deliveryStatus(last, m, peerMember),
	}
	p.UpdatedAt = last.Timestamp
	return p, nil
}
