package models

import (
	"sort"
	"time"
)

type UserType string

const (
	UserTypeCreator UserType = "creator"
	UserTypeBuyer   UserType = "buyer"
)

type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Type          UserType  `json:"type"`
	Interests     []string  `json:"interests"`
	Personality   string    `json:"personality"`
	Avatar        string    `json:"avatar"`
	Bio           string    `json:"bio"`
	TotalEarnings float64   `json:"totalEarnings"`
	IdeasSold     int       `json:"ideasSold"`
	Rating        float64   `json:"rating"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UserData is the registration payload nested under "userData" on signup.
type UserData struct {
	Name        string   `json:"name"`
	Type        UserType `json:"type"`
	Interests   []string `json:"interests"`
	Personality string   `json:"personality"`
}

// ProfilePatch carries the editable profile fields; nil means unchanged.
type ProfilePatch struct {
	Name        *string   `json:"name"`
	Bio         *string   `json:"bio"`
	Avatar      *string   `json:"avatar"`
	Interests   *[]string `json:"interests"`
	Personality *string   `json:"personality"`
}

type FriendRequestStatus string

const (
	RequestPending  FriendRequestStatus = "pending"
	RequestAccepted FriendRequestStatus = "accepted"
	RequestRejected FriendRequestStatus = "rejected"
)

type FriendRequest struct {
	ID         string              `json:"id"`
	FromUserID string              `json:"fromUserId"`
	ToUserID   string              `json:"toUserId"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Friend is one side of a symmetric friendship, stored under the owner's prefix.
type Friend struct {
	UserID    string    `json:"userId"`
	FriendID  string    `json:"friendId"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Since     time.Time `json:"since"`
	RequestID string    `json:"requestId"`
}

type Chat struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Peer returns the other participant of a two-party chat.
func (c Chat) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ChatMember is the per-user state of a chat. It never holds message data.
type ChatMember struct {
	ChatID       string     `json:"chatId"`
	UserID       string     `json:"userId"`
	PeerID       string     `json:"peerId"`
	Pinned       bool       `json:"pinned"`
	PinnedAt     *time.Time `json:"pinnedAt,omitempty"`
	LastReadSeq  int64      `json:"lastReadSeq"`
	LastReadAt   *time.Time `json:"lastReadAt,omitempty"`
	DeliveredSeq int64      `json:"deliveredSeq"`
	JoinedAt     time.Time  `json:"joinedAt"`
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Rank orders statuses along the delivery lifecycle. Failed ranks with sending
// since a resubmission starts over from there.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	default:
		return 1
	}
}

type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chatId"`
	Seq       int64         `json:"seq"`
	SenderID  string        `json:"senderId"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	Type      MessageType   `json:"type"`
	Status    MessageStatus `json:"status"`
}

type LastMessage struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	SenderID  string        `json:"senderId"`
	Timestamp time.Time     `json:"timestamp"`
	Status    MessageStatus `json:"status"`
}

// Participant is the counterpart shown on a chat preview.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ChatPreview is computed per viewer at read time from the message log.
type ChatPreview struct {
	ID          string       `json:"id"`
	Participant Participant  `json:"participant"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount int          `json:"unreadCount"`
	IsPinned    bool         `json:"isPinned"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// SortPreviews orders pinned chats first, then by UpdatedAt descending, then
// by chat id descending.
func SortPreviews(ps []ChatPreview) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
}
