// Package chat implements the direct-messaging rules: profiles, friendships,
// chats and the per-chat message log. Everything is persisted through kv.Store;
// chat previews and delivery states are derived from the log when read.
package chat

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pansan0/saleidia/internal/ws"
	"go.uber.org/zap"
)

type Config struct {
	Store         kv.Store
	Provider      identity.Provider
	Notifier      ws.Notifier
	Log           *zap.Logger
	Now           func() time.Time
	DefaultAvatar string
}

type core struct {
	store    kv.Store
	notifier ws.Notifier
	log      *zap.Logger
	now      func() time.Time
	locks    stripedLock
}

// Service groups the four directories sharing one store.
type Service struct {
	Profiles *Profiles
	Friends  *Friends
	Chats    *Chats
	Messages *Messages
}

func New(cfg Config) *Service {
	c := &core{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		log:      cfg.Log,
		now:      cfg.Now,
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}

	profiles := &Profiles{core: c, provider: cfg.Provider, defaultAvatar: cfg.DefaultAvatar}
	friends := &Friends{core: c, profiles: profiles}
	chats := &Chats{core: c, friends: friends, profiles: profiles}
	return &Service{
		Profiles: profiles,
		Friends:  friends,
		Chats:    chats,
		Messages: &Messages{core: c, chats: chats},
	}
}

func (c *core) notify(userIDs []string, typ string, data any) {
	c.notifier.Notify(userIDs, ws.Event{Type: typ, Data: data})
}

func (c *core) timestamp() time.Time {
	return c.now().UTC()
}

type nopNotifier struct{}

func (nopNotifier) Notify([]string, ws.Event) {}

// stripedLock serialises read-modify-write cycles on one record within this
// process. Writes from other instances still race; member markers only ever
// move forward so a lost update delays a receipt but never rewinds it.
type stripedLock struct {
	stripes [64]sync.Mutex
}

func (l *stripedLock) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
