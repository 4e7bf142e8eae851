package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestHubNotifyRoutesByUser(t *testing.T) {
	h := NewHub(nil)
	a1 := h.register("a", nil)
	a2 := h.register("a", nil)
	b := h.register("b", nil)

	assert.True(t, h.Online("a"))
	assert.False(t, h.Online("c"))

	h.Notify([]string{"a"}, Event{Type: EventMessageNew, Data: "hi"})

	for _, c := range []*Client{a1, a2} {
		select {
		case ev := <-c.Send:
			assert.Equal(t, EventMessageNew, ev.Type)
		default:
			t.Fatal("expected event for every session of a")
		}
	}
	select {
	case <-b.Send:
		t.Fatal("b must not receive a's event")
	default:
	}

	h.RemoveClient(a1)
	h.RemoveClient(a2)
	assert.False(t, h.Online("a"))
	h.RemoveClient(b)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h := NewHub(nil)
	c := h.register("a", nil)
	for i := 0; i < cap(c.Send)+10; i++ {
		h.Notify([]string{"a"}, Event{Type: EventMessageStatus})
	}
	assert.Len(t, c.Send, cap(c.Send))
}

func TestHubWebsocketDelivery(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.CloseRead(r.Context())
		c := h.AddClient(r.URL.Query().Get("user"), conn)
		defer h.RemoveClient(c)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=u1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return h.Online("u1") }, 2*time.Second, 10*time.Millisecond)

	h.Notify([]string{"u1"}, Event{Type: EventMessageStatus, Data: StatusUpdate{ChatID: "c1", UpToSeq: 3, Status: "read"}})

	var got struct {
		Type string       `json:"type"`
		Data StatusUpdate `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, EventMessageStatus, got.Type)
	assert.Equal(t, int64(3), got.Data.UpToSeq)
}
