// Package bus fans chat events out across API instances over NATS, so a
// websocket session on one instance hears about writes handled by another.
package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pansan0/saleidia/internal/ws"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultSubject = "dreamark.chat.events"

type envelope struct {
	UserIDs []string        `json:"userIds"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

type Config struct {
	URL     string
	Name    string
	Subject string
}

// NATS publishes every event on one subject and replays what it receives to
// the local hub. Publishing failures fall back to local delivery.
type NATS struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	local   ws.Notifier
	log     *zap.Logger
}

func Connect(cfg Config, local ws.Notifier, log *zap.Logger) (*NATS, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}

	b := &NATS{nc: nc, subject: cfg.Subject, local: local, log: log}
	b.sub, err = nc.Subscribe(cfg.Subject, b.handle)
	if err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "subscribe %s", cfg.Subject)
	}
	return b, nil
}

func (b *NATS) Notify(userIDs []string, ev ws.Event) {
	payload, err := encode(userIDs, ev)
	if err == nil {
		err = b.nc.Publish(b.subject, payload)
	}
	if err != nil {
		b.log.Warn("nats publish failed, delivering locally", zap.String("event", ev.Type), zap.Error(err))
		b.local.Notify(userIDs, ev)
	}
}

func (b *NATS) handle(msg *nats.Msg) {
	userIDs, ev, err := decode(msg.Data)
	if err != nil {
		b.log.Warn("drop malformed bus event", zap.Error(err))
		return
	}
	b.local.Notify(userIDs, ev)
}

func (b *NATS) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	return b.nc.Drain()
}

func encode(userIDs []string, ev ws.Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, errors.Wrap(err, "encode event data")
	}
	return json.Marshal(envelope{UserIDs: userIDs, Type: ev.Type, Data: data})
}

func decode(raw []byte) ([]string, ws.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ws.Event{}, errors.Wrap(err, "decode envelope")
	}
	if env.Type == "" {
		return nil, ws.Event{}, errors.New("event type missing")
	}
	return env.UserIDs, ws.Event{Type: env.Type, Data: env.Data}, nil
}
