package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/mhs5200/internal/config"
	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
	"github.com/shaunagostinho/mhs5200/internal/sim"
)

type fixture struct {
	srv  *Server
	http *httptest.Server
	gen  *sim.Generator
	drv  *mhs5200.Driver
	cfg  *config.Config
}

func newFixture(t *testing.T, connect bool) *fixture {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)

	cfg := config.Load(filepath.Join(t.TempDir(), "config.yaml"), l)
	cfg.Server.PollMs = 20

	g := sim.New()
	m := NewMetrics()
	d := mhs5200.New(
		mhs5200.WithDialer(func(string) (mhs5200.Port, error) { return g, nil }),
		mhs5200.WithTimeout(100*time.Millisecond),
		mhs5200.WithTracer(m),
		mhs5200.WithLogger(l),
	)
	if connect {
		require.NoError(t, d.Connect("/dev/sim"))
	}

	s := New(cfg, d, m, l)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hs.Close()
		d.Disconnect()
	})
	return &fixture{srv: s, http: hs, gen: g, drv: d, cfg: cfg}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, typ string) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, f.drv.Connect("/dev/sim"))
	resp, err = http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["connected"])
}

func TestAPIStatus(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.drv.SetFrequency(mhs5200.Channel2, 440))

	resp, err := http.Get(f.http.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Connected)
	assert.Equal(t, "/dev/sim", st.Path)
	assert.Equal(t, mhs5200.Channel1, st.Active)
	require.Len(t, st.Channels, 2)
	assert.InDelta(t, 1000.0, st.Channels[0].Frequency, 1e-9)
	assert.InDelta(t, 440.0, st.Channels[1].Frequency, 1e-9)
	assert.Equal(t, mhs5200.Sine, st.Channels[1].Wave)

	resp2, err := http.Post(f.http.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestAPIConfig(t *testing.T) {
	f := newFixture(t, false)

	resp, err := http.Post(f.http.URL+"/api/config", "application/json", strings.NewReader(`{"device":{"port":"/dev/ttyUSB3"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/dev/ttyUSB3", f.cfg.Device.Port)

	saved, err := os.ReadFile(f.cfg.Path())
	require.NoError(t, err)
	assert.Contains(t, string(saved), "/dev/ttyUSB3")

	resp, err = http.Get(f.http.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "/dev/ttyUSB3", got["device"].(map[string]any)["port"])

	bad, err := http.Post(f.http.URL+"/api/config", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestWebsocketCommands(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(Request{ID: "1", Command: "freq 1 440, freq 1, wave 1 square"}))
	msg := readMessage(t, conn, "reply")
	assert.Equal(t, "1", msg.ID)
	assert.Empty(t, msg.Error)
	assert.Equal(t, []string{"440.00 Hz"}, msg.Output)
	assert.Equal(t, []string{":s1f0000044000", ":r1f", ":s1w1"}, f.gen.Commands())

	require.NoError(t, conn.WriteJSON(Request{ID: "2", Command: "wave 1 sine, phase 1 999"}))
	msg = readMessage(t, conn, "reply")
	assert.Equal(t, "2", msg.ID)
	assert.Contains(t, msg.Error, "invalid argument")
	assert.Len(t, f.gen.Commands(), 3, "an invalid chain sends nothing")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg = readMessage(t, conn, "reply")
	assert.Contains(t, msg.Error, "bad request")
}

func TestWebsocketUpload_RefusesFilePath(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t)

	secret := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("hunter2-api-token\n"), 0o600))

	require.NoError(t, conn.WriteJSON(Request{ID: "u", Command: "upload 0 " + secret}))
	msg := readMessage(t, conn, "reply")
	assert.Contains(t, msg.Error, "not a file path")
	assert.NotContains(t, msg.Error, "hunter2")
	assert.Empty(t, f.gen.Commands())
}

func TestWebsocketUpload_Samples(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t)

	samples := make([]int, mhs5200.ArbitrarySamples)
	for i := range samples {
		samples[i] = i * 4
	}
	require.NoError(t, conn.WriteJSON(Request{ID: "u", Command: "upload 3", Samples: samples}))
	msg := readMessage(t, conn, "reply")
	assert.Empty(t, msg.Error)
	assert.Equal(t, []string{"arbitrary3: 1024 samples uploaded"}, msg.Output)
	assert.Len(t, f.gen.Commands(), 16)
	assert.Equal(t, samples, f.gen.ArbitraryWave(3))

	require.NoError(t, conn.WriteJSON(Request{ID: "v", Command: "upload 3", Samples: samples[:10]}))
	msg = readMessage(t, conn, "reply")
	assert.Contains(t, msg.Error, "10 samples, want 1024")
}

func TestWebsocket_CrossOriginRejected(t *testing.T) {
	f := newFixture(t, true)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://elsewhere.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebsocketNotConnected(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(Request{Command: "output on"}))
	msg := readMessage(t, conn, "reply")
	assert.Equal(t, mhs5200.ErrNotConnected.Error(), msg.Error)
}

func TestStatusBroadcast(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.pollLoop(ctx)

	conn := f.dial(t)
	msg := readMessage(t, conn, "status")
	require.NotNil(t, msg.Status)
	assert.True(t, msg.Status.Connected)
	assert.Len(t, msg.Status.Channels, 2)
	assert.NotZero(t, msg.Stamp)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(Request{Command: "phase 1 90"}))
	readMessage(t, conn, "reply")

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	// ":s1p090\n" out, "ok\r\n" back.
	assert.Contains(t, text, `mhs5200_wire_bytes_total{direction="tx"} 8`)
	assert.Contains(t, text, `mhs5200_wire_bytes_total{direction="rx"} 4`)
	assert.Contains(t, text, `mhs5200_commands_total{result="ok"} 1`)
	assert.Contains(t, text, "mhs5200_ws_clients 1")
	assert.Contains(t, text, "go_goroutines")
}
