package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/clevent/pkg/commandqueue"
	"github.com/harun/clevent/pkg/device"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	srv, err := NewServer(Config{Hub: hub, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)

	_, err = NewServer(Config{Hub: NewHub(zerolog.Nop()), Port: 70000})
	assert.Error(t, err)
}

func TestServer_StreamsCommandEvents(t *testing.T) {
	hub, ts := newTestServer(t)
	conn := dial(t, ts)

	require.Eventually(t, func() bool { return hub.Clients().Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	dev := device.NewHostDevice("monitor")
	dctx, err := device.NewContext(dev)
	require.NoError(t, err)
	q, err := commandqueue.NewQueue(dctx, dev, commandqueue.WithName("mq"))
	require.NoError(t, err)
	defer q.Close()

	c, err := commandqueue.NewCommand(q, nil, nil)
	require.NoError(t, err)
	defer c.Release()
	require.NoError(t, hub.Observe("marker", c))
	require.NoError(t, q.Finish())

	var thresholds []string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(thresholds) < 3 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var ev StatusEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, "marker", ev.Command)
		assert.Equal(t, "mq", ev.Queue)
		thresholds = append(thresholds, ev.Threshold)
	}
	assert.Equal(t, []string{"submitted", "running", "complete"}, thresholds)
}

func TestServer_ClientRemovedOnDisconnect(t *testing.T) {
	hub, ts := newTestServer(t)
	conn := dial(t, ts)

	require.Eventually(t, func() bool { return hub.Clients().Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Clients().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","clients":0}`, string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StartStop(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv, err := NewServer(Config{Host: "127.0.0.1", Port: 0, Hub: hub, Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	assert.NotEqual(t, "127.0.0.1:0", addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, srv.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz", nil)
	_, err = http.DefaultClient.Do(req)
	assert.Error(t, err)
}
