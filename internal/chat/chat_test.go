package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pansan0/saleidia/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events map[string][]ws.Event
}

func (r *recorder) Notify(userIDs []string, ev ws.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string][]ws.Event{}
	}
	for _, id := range userIDs {
		r.events[id] = append(r.events[id], ev)
	}
}

func (r *recorder) last(userID, typ string) (ws.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[userID]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return evs[i], true
		}
	}
	return ws.Event{}, false
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *clock) Rewind(d time.Duration) {
	c.Advance(-d)
}

type fixture struct {
	svc   *Service
	store *kv.Memory
	rec   *recorder
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := kv.NewMemory()
	rec := &recorder{}
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := New(Config{
		Store:    store,
		Provider: identity.NewLocalProvider(store, "test-secret", time.Hour),
		Notifier: rec,
		Now:      clk.Now,
	})
	return &fixture{svc: svc, store: store, rec: rec, clock: clk}
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	reg, err := f.svc.Profiles.Register(context.Background(), name+"@dreamark.test", "password1",
		&models.UserData{Name: name, Type: models.UserTypeCreator})
	require.NoError(t, err)
	return reg.User.ID
}

func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	req, err := f.svc.Friends.SendRequest(ctx, a, a, b)
	require.NoError(t, err)
	_, err = f.svc.Friends.Respond(ctx, b, req.ID, true)
	require.NoError(t, err)
}

func (f *fixture) chat(t *testing.T, a, b string) string {
	t.Helper()
	f.befriend(t, a, b)
	c, err := f.svc.Chats.Create(context.Background(), a, a, b)
	require.NoError(t, err)
	return c.ID
}

func TestRegisterAndProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Profiles.Register(ctx, "mai@dreamark.test", "password1", &models.UserData{
		Name: "Mai", Type: models.UserTypeCreator, Interests: []string{"music"}, Personality: "dreamer",
	})
	require.NoError(t, err)
	assert.Equal(t, reg.AuthUser.ID, reg.User.ID)
	assert.Equal(t, 5.0, reg.User.Rating)
	assert.Equal(t, defaultAvatarURL, reg.User.Avatar)
	assert.Equal(t, []string{"music"}, reg.User.Interests)

	got, err := f.svc.Profiles.Get(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mai", got.Name)

	_, err = f.svc.Profiles.Register(ctx, "mai@dreamark.test", "password1", &models.UserData{Name: "Mai 2"})
	assert.ErrorIs(t, err, apperr.ErrAuthProvider)

	_, err = f.svc.Profiles.Register(ctx, "x@dreamark.test", "password1", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Profiles.Register(ctx, "not-an-email", "password1", &models.UserData{Name: "X"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Profiles.Register(ctx, "y@dreamark.test", "password1", &models.UserData{Name: "Y", Type: "admin"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Profiles.Get(ctx, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProfileUpdateAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mai := f.user(t, "Mai")
	f.user(t, "Maitree")
	f.user(t, "Ton")

	bio := "composer"
	u, err := f.svc.Profiles.Update(ctx, mai, mai, models.ProfilePatch{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "composer", u.Bio)
	assert.Equal(t, "Mai", u.Name)

	_, err = f.svc.Profiles.Update(ctx, "someone-else", mai, models.ProfilePatch{Bio: &bio})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	empty := " "
	_, err = f.svc.Profiles.Update(ctx, mai, mai, models.ProfilePatch{Name: &empty})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	found, err := f.svc.Profiles.Search(ctx, mai, "MAI")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Maitree", found[0].Name)

	none, err := f.svc.Profiles.Search(ctx, mai, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFriendRequestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "A"), f.user(t, "B")

	req, err := f.svc.Friends.SendRequest(ctx, a, a, b)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	_, ok := f.rec.last(b, ws.EventFriendRequest)
	assert.True(t, ok)

	pending, err := f.svc.Friends.PendingRequests(ctx, b, b)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	_, err = f.svc.Friends.Respond(ctx, a, req.ID, true)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "only the recipient can respond")

	resolved, err := f.svc.Friends.Respond(ctx, b, req.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, resolved.Status)
	_, ok = f.rec.last(a, ws.EventFriendAccepted)
	assert.True(t, ok)

	_, err = f.svc.Friends.Respond(ctx, b, req.ID, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "a resolved request cannot be resolved again")

	aFriends, err := f.svc.Friends.List(ctx, a)
	require.NoError(t, err)
	require.Len(t, aFriends, 1)
	assert.Equal(t, b, aFriends[0].FriendID)
	assert.Equal(t, "B", aFriends[0].Name)

	bFriends, err := f.svc.Friends.List(ctx, b)
	require.NoError(t, err)
	require.Len(t, bFriends, 1)
	assert.Equal(t, a, bFriends[0].FriendID)

	pending, err = f.svc.Friends.PendingRequests(ctx, b, b)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.svc.Friends.SendRequest(ctx, a, a, b)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFriends)
}

func TestFriendRequestGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "A"), f.user(t, "B"), f.user(t, "C")

	_, err := f.svc.Friends.SendRequest(ctx, b, a, b)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "cannot send on behalf of another user")
	_, err = f.svc.Friends.SendRequest(ctx, a, a, a)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Friends.SendRequest(ctx, a, a, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Friends.SendRequest(ctx, a, a, b)
	require.NoError(t, err)
	_, err = f.svc.Friends.SendRequest(ctx, a, a, b)
	assert.ErrorIs(t, err, apperr.ErrDuplicateRequest)
	_, err = f.svc.Friends.SendRequest(ctx, b, b, a)
	assert.ErrorIs(t, err, apperr.ErrDuplicateRequest, "the reverse direction is the same pair")

	_, err = f.svc.Friends.PendingRequests(ctx, a, b)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	// rejecting frees the pair for a new request
	r2, err := f.svc.Friends.SendRequest(ctx, c, c, a)
	require.NoError(t, err)
	_, err = f.svc.Friends.Respond(ctx, a, r2.ID, false)
	require.NoError(t, err)
	ok, err := f.svc.Friends.AreFriends(ctx, a, c)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.svc.Friends.SendRequest(ctx, c, c, a)
	assert.NoError(t, err)
}

func TestConcurrentDuplicateRequestsAdmitOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "A"), f.user(t, "B")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			if _, err := f.svc.Friends.SendRequest(ctx, from, from, to); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestPendingRequestsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "Target")
	var ids []string
	for i := 0; i < 3; i++ {
		from := f.user(t, fmt.Sprintf("S%d", i))
		f.clock.Advance(time.Minute)
		r, err := f.svc.Friends.SendRequest(ctx, from, from, target)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	pending, err := f.svc.Friends.PendingRequests(ctx, target, target)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, ids[2], pending[0].ID)
	assert.Equal(t, ids[0], pending[2].ID)
}

func TestCreateChatRequiresFriendshipAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "A"), f.user(t, "B"), f.user(t, "C")

	_, err := f.svc.Chats.Create(ctx, a, a, b)
	assert.ErrorIs(t, err, apperr.ErrNotFriends)

	f.befriend(t, a, b)

	_, err = f.svc.Chats.Create(ctx, c, a, b)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Chats.Create(ctx, a, a, a)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	first, err := f.svc.Chats.Create(ctx, a, a, b)
	require.NoError(t, err)
	second, err := f.svc.Chats.Create(ctx, b, b, a)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	list, err := f.svc.Chats.List(ctx, a, a, "")
	require.NoError(t, err)
	require.Len(t, list.Chats, 1, "no duplicate chat")
	assert.Equal(t, first.ID, list.Chats[0].ID)
	assert.Equal(t, "B", list.Chats[0].Participant.Name)
	assert.Nil(t, list.Chats[0].LastMessage)
}

func TestSendAndListMessagesInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "A"), f.user(t, "B")
	chatID := f.chat(t, a, b)

	empty, err := f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var sent []models.Message
	for i := 0; i < 5; i++ {
		sender := a
		if i%2 == 1 {
			sender = b
		}
		m, err := f.svc.Messages.Send(ctx, sender, chatID, sender, fmt.Sprintf("  msg %d ", i))
		require.NoError(t, err)
		assert.Equal(t, models.StatusSent, m.Status)
		sent = append(sent, m)
	}
	assert.Equal(t, "msg 0", sent[0].Text)

	got, err := f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := range got {
		assert.Equal(t, sent[i].ID, got[i].ID)
		if i > 0 {
			assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
			assert.Greater(t, got[i].Seq, got[i-1].Seq)
		}
	}

	ev, ok := f.rec.last(b, ws.EventMessageNew)
	require.True(t, ok)
	assert.Equal(t, sent[4].ID, ev.Data.(models.Message).ID)
}

func TestSendRejectsImpersonationAndOutsiders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "A"), f.user(t, "B"), f.user(t, "C")
	chatID := f.chat(t, a, b)

	_, err := f.svc.Messages.Send(ctx, b, chatID, a, "pretending")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.Messages.Send(ctx, c, chatID, c, "let me in")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.Messages.Send(ctx, a, "no-such-chat", a, "hello")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Messages.Send(ctx, a, chatID, a, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	msgs, err := f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "rejected sends leave the log unchanged")

	_, err = f.svc.Messages.List(ctx, c, chatID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestDeliveryLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "A"), f.user(t, "B")
	chatID := f.chat(t, a, b)

	_, err := f.svc.Messages.Send(ctx, a, chatID, a, "hello")
	require.NoError(t, err)

	got, err := f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0].SenderID)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, models.StatusSent, got[0].Status)

	// B fetching delivers it
	_, err = f.svc.Messages.List(ctx, b, chatID)
	require.NoError(t, err)
	ev, ok := f.rec.last(a, ws.EventMessageStatus)
	require.True(t, ok)
	assert.Equal(t, "delivered", ev.Data.(ws.StatusUpdate).Status)

	got, err = f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got[0].Status)

	// B opening the chat reads it
	require.NoError(t, f.svc.Chats.MarkRead(ctx, b, chatID))
	ev, ok = f.rec.last(a, ws.EventMessageStatus)
	require.True(t, ok)
	assert.Equal(t, "read", ev.Data.(ws.StatusUpdate).Status)

	got, err = f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got[0].Status)

	list, err := f.svc.Chats.List(ctx, a, a, "")
	require.NoError(t, err)
	require.Len(t, list.Chats, 1)
	require.NotNil(t, list.Chats[0].LastMessage)
	assert.Equal(t, models.StatusRead, list.Chats[0].LastMessage.Status)

	// fetching again never moves a status backwards
	_, err = f.svc.Messages.List(ctx, b, chatID)
	require.NoError(t, err)
	got, err = f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got[0].Status)
}

func TestMessageCanSkipDeliveredToRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "A"), f.user(t, "B")
	chatID := f.chat(t, a, b)

	_, err := f.svc.Messages.Send(ctx, a, chatID, a, "hi")
	require.NoError(t, err)
	require.NoError(t, f.svc.Chats.MarkRead(ctx, b, chatID))

	got, err := f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got[0].Status)
}

func TestUnreadCountAfterMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, peer := f.user(t, "U"), f.user(t, "Peer")
	chatID := f.chat(t, u, peer)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Messages.Send(ctx, peer, chatID, peer, "ping")
		require.NoError(t, err)
	}
	_, err := f.svc.Messages.Send(ctx, u, chatID, u, "own messages never count")
	require.NoError(t, err)

	list, err := f.svc.Chats.List(ctx, u, u, "")
	require.NoError(t, err)
	assert.Equal(t, 3, list.Chats[0].UnreadCount)
	assert.Equal(t, 3, list.TotalUnread)

	require.NoError(t, f.svc.Chats.MarkRead(ctx, u, chatID))
	list, err = f.svc.Chats.List(ctx, u, u, "")
	require.NoError(t, err)
	assert.Equal(t, 0, list.Chats[0].UnreadCount)

	_, err = f.svc.Messages.Send(ctx, u, chatID, u, "still zero")
	require.NoError(t, err)
	list, err = f.svc.Chats.List(ctx, u, u, "")
	require.NoError(t, err)
	assert.Equal(t, 0, list.Chats[0].UnreadCount)

	_, err = f.svc.Messages.Send(ctx, peer, chatID, peer, "new")
	require.NoError(t, err)
	list, err = f.svc.Chats.List(ctx, u, u, "")
	require.NoError(t, err)
	assert.Equal(t, 1, list.Chats[0].UnreadCount)

	// read state is per user
	peerList, err := f.svc.Chats.List(ctx, peer, peer, "")
	require.NoError(t, err)
	assert.Equal(t, 2, peerList.Chats[0].UnreadCount)
}

func TestChatListPinAndRecencyOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, x, y := f.user(t, "U"), f.user(t, "Xena"), f.user(t, "Yuki")
	c2 := f.chat(t, u, x)
	c1 := f.chat(t, u, y)

	_, err := f.svc.Messages.Send(ctx, x, c2, x, "three hours ago")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Messages.Send(ctx, y, c1, y, "one hour ago")
	require.NoError(t, err)

	list, err := f.svc.Chats.List(ctx, u, u, "")
	require.NoError(t, err)
	assert.Equal(t, []string{c1, c2}, previewIDs(list.Chats))

	require.NoError(t, f.svc.Chats.SetPinned(ctx, u, c2, true))
	list, err = f.svc.Chats.List(ctx, u, u, "")
	require.NoError(t, err)
	assert.Equal(t, []string{c2, c1}, previewIDs(list.Chats))
	assert.True(t, list.Chats[0].IsPinned)

	// pins belong to the user who set them
	xList, err := f.svc.Chats.List(ctx, x, x, "")
	require.NoError(t, err)
	assert.False(t, xList.Chats[0].IsPinned)

	filtered, err := f.svc.Chats.List(ctx, u, u, "yU")
	require.NoError(t, err)
	assert.Equal(t, []string{c1}, previewIDs(filtered.Chats))

	_, err = f.svc.Chats.List(ctx, x, u, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.Chats.SetPinned(ctx, u, "missing", true), apperr.ErrNotFound)
}

func TestConcurrentSendsGetDistinctSequences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "A"), f.user(t, "B")
	chatID := f.chat(t, a, b)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := a
			if i%2 == 0 {
				sender = b
			}
			_, err := f.svc.Messages.Send(ctx, sender, chatID, sender, fmt.Sprint(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	seen := map[int64]bool{}
	for _, m := range msgs {
		assert.False(t, seen[m.Seq])
		seen[m.Seq] = true
	}
}

func TestChatIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, ChatID("a", "b"), ChatID("b", "a"))
	assert.NotEqual(t, ChatID("a", "b"), ChatID("a", "c"))
}

func previewIDs(ps []models.ChatPreview) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestLogFollowsSequenceWhenClockStepsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "A"), f.user(t, "B")
	chatID := f.chat(t, a, b)

	first, err := f.svc.Messages.Send(ctx, a, chatID, a, "first")
	require.NoError(t, err)
	f.clock.Rewind(time.Hour)
	second, err := f.svc.Messages.Send(ctx, a, chatID, a, "second")
	require.NoError(t, err)
	require.True(t, second.Timestamp.Before(first.Timestamp))

	// b reads the first two
	require.NoError(t, f.svc.Chats.MarkRead(ctx, b, chatID))
	third, err := f.svc.Messages.Send(ctx, a, chatID, a, "third")
	require.NoError(t, err)

	got, err := f.svc.Messages.List(ctx, a, chatID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, []models.MessageStatus{models.StatusRead, models.StatusRead, models.StatusSent},
		[]models.MessageStatus{got[0].Status, got[1].Status, got[2].Status})
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}

	list, err := f.svc.Chats.List(ctx, a, a, "")
	require.NoError(t, err)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, third.ID, list.Chats[0].LastMessage.ID)
}
