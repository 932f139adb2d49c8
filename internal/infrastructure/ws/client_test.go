package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribemarket/scribemarket/internal/events"
)

type wsTestServer struct {
	srv      *httptest.Server
	authHdr  chan string
	inbound  chan events.Envelope
	sessions chan *websocket.Conn
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ts := &wsTestServer{
		authHdr:  make(chan string, 4),
		inbound:  make(chan events.Envelope, 16),
		sessions: make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.authHdr <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ts.sessions <- conn
		go func() {
			for {
				var env events.Envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				ts.inbound <- env
			}
		}()
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *wsTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func recvEnvelope(t *testing.T, ch chan events.Envelope) events.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return events.Envelope{}
	}
}

func TestDial_SendsBearerTokenAndIdentify(t *testing.T) {
	ts := newWSTestServer(t)
	d := NewDialer(ts.wsURL(), "tok-9", time.Second, zerolog.Nop())

	transport, err := d.Dial(context.Background(), "u1")
	require.NoError(t, err)
	defer transport.Close()

	assert.Equal(t, "Bearer tok-9", <-ts.authHdr)

	env := recvEnvelope(t, ts.inbound)
	assert.Equal(t, events.Name("identify"), env.Event)
	var p identifyPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "u1", p.IdentityID)
}

func TestJoin_WritesJoinEnvelope(t *testing.T) {
	ts := newWSTestServer(t)
	d := NewDialer(ts.wsURL(), "tok", time.Second, zerolog.Nop())

	transport, err := d.Dial(context.Background(), "u1")
	require.NoError(t, err)
	defer transport.Close()

	recvEnvelope(t, ts.inbound) // identify

	require.NoError(t, transport.Join(context.Background(), "u2"))

	env := recvEnvelope(t, ts.inbound)
	assert.Equal(t, events.Name("join"), env.Event)
	var p joinPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "u2", p.Room)
}

func TestReadEvent_DeliversServerPush(t *testing.T) {
	ts := newWSTestServer(t)
	d := NewDialer(ts.wsURL(), "tok", time.Second, zerolog.Nop())

	transport, err := d.Dial(context.Background(), "u1")
	require.NoError(t, err)
	defer transport.Close()

	server := <-ts.sessions
	require.NoError(t, server.WriteJSON(events.Envelope{
		Event: events.NameNewChatMessage,
		Data:  json.RawMessage(`{"id":"m1","sender_id":"u2","receiver_id":"u1","content":"hi"}`),
	}))

	env, err := transport.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, events.NameNewChatMessage, env.Event)
}

func TestReadEvent_ErrorAfterServerClose(t *testing.T) {
	ts := newWSTestServer(t)
	d := NewDialer(ts.wsURL(), "tok", time.Second, zerolog.Nop())

	transport, err := d.Dial(context.Background(), "u1")
	require.NoError(t, err)

	server := <-ts.sessions
	require.NoError(t, server.Close())

	_, err = transport.ReadEvent()
	require.Error(t, err)
}

func TestDial_RefusedEndpoint(t *testing.T) {
	d := NewDialer("ws://127.0.0.1:1/socket", "tok", 100*time.Millisecond, zerolog.Nop())

	_, err := d.Dial(context.Background(), "u1")
	require.Error(t, err)
}
