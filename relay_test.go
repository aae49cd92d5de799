package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*relay, *httptest.Server, *httptest.Server) {
	cfg := defaultConfig()
	cfg.IDs = "counter"
	r, err := newRelay(cfg, zerolog.Nop())
	require.NoError(t, err)
	wsSrv := httptest.NewServer(r.relayHandler())
	httpSrv := httptest.NewServer(r.httpHandler())
	t.Cleanup(func() {
		wsSrv.Close()
		httpSrv.Close()
		r.close()
	})
	return r, wsSrv, httpSrv
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *client {
	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/"
	dialer := &websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{
				Timeout: 3 * time.Second,
			}
			return d.Dial(network, u.Host)
		},
		HandshakeTimeout: 3 * time.Second,
	}
	ws, resp, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatal("dial error:", err, "resp:", resp)
	}
	t.Cleanup(func() { ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(message string) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, []byte(message)))
}

func (c *client) read() string {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, message, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	return string(message)
}

func (c *client) readFrame() frame {
	c.t.Helper()
	var f frame
	require.NoError(c.t, json.Unmarshal([]byte(c.read()), &f))
	return f
}

// waitConnections blocks until the hub has processed n registrations.
func waitConnections(t *testing.T, r *relay, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.hub.snapshot().Connections == n
	}, 3*time.Second, 5*time.Millisecond)
}

func TestRelayRouting(t *testing.T) {
	r, wsSrv, _ := newTestRelay(t)

	admin := dial(t, wsSrv)
	admin.send(`{"message":"Hello Server!"}`)
	confirm := admin.readFrame()
	adminID := confirm.ClientID
	assert.JSONEq(t, `{"message":"You are now marked as an admin, client `+adminID+`"}`, string(confirm.Message))
	// The promotion message itself is broadcast to admins, including the new one.
	echo := admin.readFrame()
	assert.Equal(t, adminID, echo.ClientID)

	customer := dial(t, wsSrv)
	waitConnections(t, r, 2)
	customer.send(`{"text":"hello"}`)
	f := admin.readFrame()
	customerID := f.ClientID
	assert.NotEqual(t, adminID, customerID)
	assert.JSONEq(t, `{"text":"hello"}`, string(f.Message))

	admin.send(`{"client_id":"` + customerID + `","text":"hi back"}`)
	assert.Equal(t, `{"client_id":"`+customerID+`","text":"hi back"}`, customer.read())

	customer.send(`{"client_id":"nonexistent"}`)
	assert.Equal(t, `{"status":"Closed"}`, customer.read())

	// A malformed payload leaves the connection usable.
	customer.send(`{oops`)
	customer.send(`{"client_id":"` + adminID + `","after":"fault"}`)
	assert.Equal(t, `{"client_id":"`+adminID+`","after":"fault"}`, admin.read())

	var faults int
	for _, e := range r.logs.snapshot() {
		if strings.HasPrefix(e.Message, "Message parse error from "+customerID) {
			faults++
		}
	}
	assert.Equal(t, 1, faults)

	customer.ws.Close()
	gone := admin.readFrame()
	assert.Equal(t, customerID, gone.ClientID)
	assert.JSONEq(t, `{"message":{"message":"Client Disconnected!"}}`, string(gone.Message))
	waitConnections(t, r, 1)
}

func TestRelayBinaryFramesAndReadLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.IDs = "counter"
	cfg.ReadLimit = 256
	r, err := newRelay(cfg, zerolog.Nop())
	require.NoError(t, err)
	wsSrv := httptest.NewServer(r.relayHandler())
	t.Cleanup(func() {
		wsSrv.Close()
		r.close()
	})

	admin := dial(t, wsSrv)
	admin.send(`{"message":"Hello Server!"}`)
	admin.read()
	admin.read()

	sender := dial(t, wsSrv)
	waitConnections(t, r, 2)
	require.NoError(t, sender.ws.WriteMessage(websocket.BinaryMessage, []byte(`{"kind":"binary"}`)))
	assert.JSONEq(t, `{"kind":"binary"}`, string(admin.readFrame().Message))

	// An oversized frame ends the sender's connection, and admins hear of it.
	sender.send(`{"pad":"` + strings.Repeat("x", 512) + `"}`)
	gone := admin.readFrame()
	assert.JSONEq(t, `{"message":{"message":"Client Disconnected!"}}`, string(gone.Message))
	waitConnections(t, r, 1)
}

func TestRelayClientConnectedPosts(t *testing.T) {
	target, posted := recordingServer(t, http.StatusOK)
	r, wsSrv, _ := newTestRelay(t)

	customer := dial(t, wsSrv)
	customer.send(`{"message":{"message":"Client Connected!"},"url":"` + target.URL + `/"}`)

	select {
	case req := <-posted:
		assert.Equal(t, "/web/chat_view_socket_reciver", req.path)
		assert.Equal(t, "application/json", req.contentType)
	case <-time.After(3 * time.Second):
		t.Fatal("connected event never posted")
	}

	customer.send(`not json`)
	select {
	case req := <-posted:
		assert.True(t, strings.HasSuffix(req.path, "/admin/sent_whatsapp_admin"), req.path)
		assert.Contains(t, req.body, "Error Web Socket Server : ")
	case <-time.After(3 * time.Second):
		t.Fatal("parse error never posted")
	}
	assert.Equal(t, 1, r.hub.snapshot().URLs)
}

func TestRelayRejectsPlainRequests(t *testing.T) {
	_, wsSrv, _ := newTestRelay(t)
	resp, err := http.Get(wsSrv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelayHandlerMatchesUpgrades(t *testing.T) {
	r, _, _ := newTestRelay(t)
	router, ok := r.relayHandler().(*mux.Router)
	require.True(t, ok)

	tests := []struct {
		connection, upgrade string
		match               bool
	}{
		{"Upgrade", "websocket", true},
		{"keep-alive, Upgrade", "websocket", true},
		{"upgrade", "WebSocket", true},
		{"keep-alive", "", false},
		{"Upgrade", "h2c", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Connection", tt.connection)
		if tt.upgrade != "" {
			req.Header.Set("Upgrade", tt.upgrade)
		}
		// Unmatched requests fall through to the bad request handler.
		var match mux.RouteMatch
		require.True(t, router.Match(req, &match))
		assert.Equal(t, tt.match, match.MatchErr == nil, "%q %q", tt.connection, tt.upgrade)
	}
}

func TestRelayOrigin(t *testing.T) {
	cfg := defaultConfig()
	cfg.Origin = "https://allowed.example"
	r, err := newRelay(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer r.close()
	srv := httptest.NewServer(r.relayHandler())
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://allowed.example"}})
	require.NoError(t, err)
	ws.Close()
}

func TestHTTPLogs(t *testing.T) {
	r, _, httpSrv := newTestRelay(t)
	r.logs.append("first")
	r.logs.append("second")

	for _, path := range []string{"/logs", "/logs?since=now"} {
		resp, err := http.Get(httpSrv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var entries []struct {
			Time    string `json:"time"`
			Message string `json:"message"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
		resp.Body.Close()
		require.Len(t, entries, 2)
		assert.Equal(t, "first", entries[0].Message)
		_, err = time.Parse(time.RFC3339Nano, entries[1].Time)
		assert.NoError(t, err)
	}
}

func TestHTTPViewerAndStatus(t *testing.T) {
	_, _, httpSrv := newTestRelay(t)

	resp, err := http.Get(httpSrv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `fetch("/logs")`)
	assert.Contains(t, string(body), "setInterval(load, 2000)")

	resp, err = http.Get(httpSrv.URL + "/status")
	require.NoError(t, err)
	var s stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	resp.Body.Close()
	assert.Equal(t, stats{}, s)

	resp, err = http.Get(httpSrv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(httpSrv.URL + "/nope")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found\n", string(body))
}
