// ABOUTME: Transport tests over real WebSockets against an httptest server
// ABOUTME: Client/admin handshakes, frame round trips, admin auth and disconnect cleanup

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/hub"
	"github.com/2389/support-gateway/internal/store"
	"github.com/2389/support-gateway/internal/support"
)

type testServer struct {
	url     string
	engine  *support.Engine
	store   *store.MockStore
	handler *Handler
}

func newTestServer(t *testing.T, verifier auth.TokenVerifier) *testServer {
	t.Helper()
	ms := store.NewMockStore()
	engine := support.New(support.Config{Store: ms})

	h := NewHandler(Config{
		Engine:      engine,
		Accounts:    ms,
		Verifier:    verifier,
		ReadTimeout: 5 * time.Second,
		Connection:  Options{WriteTimeout: time.Second, SendBuffer: 32},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/client", h.ServeClient)
	mux.HandleFunc("GET /ws/admin", h.ServeAdmin)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
	})

	return &testServer{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		engine:  engine,
		store:   ms,
		handler: h,
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := hub.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, payload))
}

// readEvent reads frames until one named event arrives.
func readEvent(t *testing.T, ws *websocket.Conn, event string) hub.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		f, err := hub.Decode(data)
		require.NoError(t, err)
		if f.Event == event {
			return *f
		}
	}
}

func TestClientAndAdminRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)

	client := dial(t, ts.url+"/ws/client?user_id=c1")
	require.Eventually(t, func() bool { return ts.engine.Registry().Contains("c1") }, 2*time.Second, 10*time.Millisecond)

	send(t, client, hub.EventMessage, map[string]string{"type": "text", "message": "hello"})
	echo := readEvent(t, client, hub.EventMessage)
	var out map[string]any
	require.NoError(t, json.Unmarshal(echo.Data, &out))
	assert.Equal(t, "hello", out["message"])
	assert.Equal(t, "client", out["sender"])

	admin := dial(t, ts.url+"/ws/admin")
	roster := readEvent(t, admin, hub.EventConnectedClients)
	assert.Contains(t, string(roster.Data), `"c1"`)

	send(t, admin, hub.EventJoinConversation, map[string]string{"user_id": "c1"})
	lc := readEvent(t, admin, hub.EventLastChat)
	var last support.LastChat
	require.NoError(t, json.Unmarshal(lc.Data, &last))
	require.Len(t, last.Messages, 1)
	assert.Equal(t, "hello", last.Messages[0].Body)

	readEvent(t, client, hub.EventJoinConversation)

	send(t, admin, hub.EventAdminMessage, map[string]string{"room": "c1", "type": "text", "message": "hi back"})
	reply := readEvent(t, client, hub.EventMessage)
	require.NoError(t, json.Unmarshal(reply.Data, &out))
	assert.Equal(t, "hi back", out["message"])
	assert.Equal(t, "admin", out["sender"])
}

func TestClientCookieIdentity(t *testing.T) {
	ts := newTestServer(t, nil)

	header := http.Header{}
	header.Set("Cookie", CookieName+"=from-cookie")
	ws, resp, err := websocket.DefaultDialer.Dial(ts.url+"/ws/client", header)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()

	require.Eventually(t, func() bool { return ts.engine.Registry().Contains("from-cookie") }, 2*time.Second, 10*time.Millisecond)
}

func TestClientWithoutIdentityRejected(t *testing.T) {
	ts := newTestServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(ts.url+"/ws/client", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientDisconnectClearsPresence(t *testing.T) {
	ts := newTestServer(t, nil)

	client := dial(t, ts.url+"/ws/client?user_id=c1")
	require.Eventually(t, func() bool { return ts.engine.Registry().Contains("c1") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second)))
	client.Close()

	require.Eventually(t, func() bool { return !ts.engine.Registry().Contains("c1") }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return ts.handler.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAdminRequiresTokenWhenConfigured(t *testing.T) {
	verifier := auth.NewJWTVerifier([]byte("0123456789abcdef0123456789abcdef"))
	ts := newTestServer(t, verifier)
	require.NoError(t, ts.store.CreateAccount(context.Background(), &store.Account{ID: "acct-1", Username: "alice"}))

	_, resp, err := websocket.DefaultDialer.Dial(ts.url+"/ws/admin", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(ts.url+"/ws/admin?token=bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _, err := verifier.Generate("acct-1", time.Hour)
	require.NoError(t, err)
	admin := dial(t, ts.url+"/ws/admin?token="+token)
	readEvent(t, admin, hub.EventConnectedClients)
}

func TestAdminDisconnectReleasesRouting(t *testing.T) {
	ts := newTestServer(t, nil)

	admin := dial(t, ts.url+"/ws/admin")
	readEvent(t, admin, hub.EventConnectedClients)
	send(t, admin, hub.EventJoinConversation, map[string]string{"user_id": "c1"})
	readEvent(t, admin, hub.EventLastChat)
	require.Len(t, ts.engine.Router().AdminsFor("c1"), 1)

	admin.Close()
	require.Eventually(t, func() bool { return len(ts.engine.Router().AdminsFor("c1")) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUndecodableFramesAreSkipped(t *testing.T) {
	ts := newTestServer(t, nil)

	client := dial(t, ts.url+"/ws/client?user_id=c1")
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	send(t, client, hub.EventMessage, map[string]string{"type": "text", "message": "still here"})

	readEvent(t, client, hub.EventMessage)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://shop.example.com/"})

	req := func(origin, host string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://"+host+"/ws/client", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(req("", "gw.example.com")))
	assert.True(t, check(req("https://shop.example.com", "gw.example.com")))
	assert.True(t, check(req("https://gw.example.com", "gw.example.com")))
	assert.False(t, check(req("https://evil.example.net", "gw.example.com")))

	assert.True(t, originChecker([]string{"*"})(req("https://anything.test", "gw.example.com")))
}

func TestConnection_SendAfterCloseFails(t *testing.T) {
	ts := newTestServer(t, nil)
	dial(t, ts.url+"/ws/client?user_id=c1")
	require.Eventually(t, func() bool { return ts.handler.Active() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.handler.mu.Lock()
	var conn *Connection
	for c := range ts.handler.conns {
		conn = c
	}
	ts.handler.mu.Unlock()

	conn.Close(websocket.CloseNormalClosure, "test")
	assert.ErrorIs(t, conn.Send([]byte(`{}`)), ErrConnectionClosed)
}

// stalledPeer returns a server-side connection whose peer never reads.
func stalledPeer(t *testing.T, opts Options) *Connection {
	t.Helper()
	conns := make(chan *Connection, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConnection(ws, opts, nil)
		conn.Start()
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close(websocket.CloseNormalClosure, "test over") })
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("server never accepted the socket")
		return nil
	}
}

func TestConnection_SlowPeerDoesNotBlockSend(t *testing.T) {
	conn := stalledPeer(t, Options{WriteTimeout: 5 * time.Second, SendBuffer: 2})

	// Large frames fill the kernel buffers so the write loop stalls
	payload := []byte(`"` + strings.Repeat("x", 4<<20) + `"`)

	var err error
	for range 100 {
		start := time.Now()
		err = conn.Send(payload)
		elapsed := time.Since(start)
		require.Less(t, elapsed, 500*time.Millisecond, "Send blocked on a stalled peer")
		if err != nil {
			break
		}
	}

	assert.ErrorIs(t, err, ErrSendBufferFull)
	select {
	case <-conn.Done():
	default:
		t.Fatal("slow peer was not disconnected")
	}
	assert.ErrorIs(t, conn.Send([]byte(`{}`)), ErrConnectionClosed)
}

func TestConnection_CloseReturnsWhileWriterIsStuck(t *testing.T) {
	conn := stalledPeer(t, Options{WriteTimeout: 5 * time.Second, SendBuffer: 64})

	payload := []byte(`"` + strings.Repeat("x", 4<<20) + `"`)
	for range 8 {
		require.NoError(t, conn.Send(payload))
	}

	start := time.Now()
	conn.Close(websocket.CloseGoingAway, "server shutting down")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
