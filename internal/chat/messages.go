package chat

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pansan0/saleidia/internal/ws"
	"github.com/pkg/errors"
)

const maxMessageRunes = 4000

type Messages struct {
	*core
	chats *Chats
}

// Send appends a text message to the chat log. The message is stored once,
// under its chat and server-assigned sequence number.
func (s *Messages) Send(ctx context.Context, actorID, chatID, senderID, text string) (models.Message, error) {
	if actorID == "" || actorID != senderID {
		return models.Message{}, errors.Wrap(apperr.ErrUnauthorized, "sender does not match token")
	}
	if chatID == "" {
		return models.Message{}, errors.Wrap(apperr.ErrValidation, "chatId is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, errors.Wrap(apperr.ErrValidation, "text is required")
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return models.Message{}, errors.Wrapf(apperr.ErrValidation, "text exceeds %d characters", maxMessageRunes)
	}

	chat, err := s.chats.Participant(ctx, chatID, senderID)
	if err != nil {
		return models.Message{}, err
	}

	seq, err := s.store.Next(ctx, chatSeqCounter(chatID))
	if err != nil {
		return models.Message{}, err
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Seq:       seq,
		SenderID:  senderID,
		Text:      text,
		Timestamp: s.timestamp(),
		Type:      models.MessageText,
		Status:    models.StatusSent,
	}
	if err := kv.SetJSON(ctx, s.store, chatMessageKey(chatID, seq), msg); err != nil {
		return models.Message{}, err
	}

	s.notify(chat.Participants, ws.EventMessageNew, msg)
	return msg, nil
}

// List returns the chat's messages in chronological order with the delivery
// status each one has for the caller. Fetching counts as delivery: the
// caller's delivered marker moves to the newest message and the counterpart
// is told.
func (s *Messages) List(ctx context.Context, actorID, chatID string) ([]models.Message, error) {
	chat, err := s.chats.Participant(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.loadLog(ctx, chatID)
	if err != nil {
		return nil, err
	}

	upTo := maxSeq(msgs)
	advanced := false
	self, err := s.chats.updateMember(ctx, chat, actorID, func(m *models.ChatMember) bool {
		if upTo > m.DeliveredSeq {
			m.DeliveredSeq = upTo
			advanced = true
		}
		return advanced
	})
	if err != nil {
		return nil, err
	}
	peer, err := s.chats.member(ctx, chat, chat.Peer(actorID))
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		msgs[i].Status = deliveryStatus(msgs[i], self, peer)
	}

	if advanced {
		s.notify([]string{chat.Peer(actorID)}, ws.EventMessageStatus, ws.StatusUpdate{
			ChatID:   chatID,
			ReaderID: actorID,
			UpToSeq:  upTo,
			Status:   string(models.StatusDelivered),
		})
	}
	return msgs, nil
}

// loadLog reads a chat's log in sequence order. Receipts are tracked by
// sequence, so a timestamp behind its predecessor's (clock skew between
// instances) is lifted to it; log order and time order then always agree.
func (c *core) loadLog(ctx context.Context, chatID string) ([]models.Message, error) {
	msgs, err := kv.ListJSON[models.Message](ctx, c.store, chatMessagePrefix(chatID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			msgs[i].Timestamp = msgs[i-1].Timestamp
		}
	}
	return msgs, nil
}

func maxSeq(msgs []models.Message) int64 {
	var n int64
	for _, m := range msgs {
		if m.Seq > n {
			n = m.Seq
		}
	}
	return n
}

// deliveryStatus derives msg's status from the markers of whoever received it:
// the peer for the viewer's own messages, the viewer otherwise.
func deliveryStatus(msg models.Message, viewer, peer models.ChatMember) models.MessageStatus {
	recv := viewer
	if msg.SenderID == viewer.UserID {
		recv = peer
	}
	switch {
	case msg.Seq <= recv.LastReadSeq:
		return models.StatusRead
	case msg.Seq <= recv.DeliveredSeq:
		return models.StatusDelivered
	default:
		return models.StatusSent
	}
}
