// Package server exposes a generator over HTTP: a websocket command bridge
// with periodic status broadcasts, a small JSON API and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mhs5200/internal/command"
	"github.com/shaunagostinho/mhs5200/internal/config"
	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
)

// Server serves one driver to any number of websocket clients.
type Server struct {
	cfg     *config.Config
	drv     *mhs5200.Driver
	metrics *Metrics
	log     logrus.FieldLogger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Request is a command line sent by a websocket client, e.g.
// {"id":"7","command":"freq 1 1000, amp 1 2"}. An upload names no file; its
// samples travel in Samples: {"command":"upload 3","samples":[0,4095,...]}.
type Request struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
	Samples []int  `json:"samples,omitempty"`
}

// Message is everything the server sends over the websocket.
type Message struct {
	Type   string   `json:"type"` // "reply" or "status"
	ID     string   `json:"id,omitempty"`
	Output []string `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
	Status *Status  `json:"status,omitempty"`
	Stamp  int64    `json:"stamp"` // Unix ms
}

// Status is a snapshot of the whole generator.
type Status struct {
	Connected bool               `json:"connected"`
	Path      string             `json:"path,omitempty"`
	Output    bool               `json:"output"`
	Active    mhs5200.Channel    `json:"active,omitempty"`
	Channels  []mhs5200.Settings `json:"channels,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// New creates a Server. metrics may be nil.
func New(cfg *config.Config, drv *mhs5200.Driver, metrics *Metrics, log logrus.FieldLogger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:     cfg,
		drv:     drv,
		metrics: metrics,
		log:     log.WithField("component", "server"),
		clients: make(map[*wsClient]struct{}),
		// Default origin check: pages served from another host cannot
		// drive the generator through a visitor's browser.
		upgrader: websocket.Upgrader{},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Run serves HTTP and broadcasts status until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go s.pollLoop(ctx)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Infof("listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("ws upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.metrics.clients.Set(float64(n))
	s.log.Infof("ws client connected (%d total)", n)

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			s.metrics.clients.Set(float64(n))
			s.log.Infof("ws client disconnected (%d total)", n)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := s.execute(data)
			if out, err := json.Marshal(reply); err == nil {
				select {
				case client.send <- out:
				default:
					s.log.Warn("ws client too slow, reply dropped")
				}
			}
		}
	}()
}

// execute runs one websocket request and builds its reply.
func (s *Server) execute(data []byte) Message {
	reply := Message{Type: "reply"}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		reply.Error = "bad request: " + err.Error()
		reply.Stamp = time.Now().UnixMilli()
		return reply
	}
	reply.ID = req.ID

	start := time.Now()
	out, err := s.runCommand(req)
	s.metrics.observeCommand(start, err)

	reply.Output = out
	if err != nil {
		reply.Error = err.Error()
		s.log.Debugf("command %q failed: %v", req.Command, err)
	}
	reply.Stamp = time.Now().UnixMilli()
	return reply
}

func (s *Server) runCommand(req Request) ([]string, error) {
	chain, err := command.ParseChain(strings.Fields(req.Command))
	if err != nil {
		return nil, err
	}
	for i, c := range chain {
		up, ok := c.(*command.Upload)
		if !ok {
			continue
		}
		if up.Path != "" {
			return nil, fmt.Errorf("command %d: %w: upload takes samples, not a file path", i+1, command.ErrInvalid)
		}
		up.Samples = req.Samples
	}
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	if !s.drv.IsConnected() {
		return nil, mhs5200.ErrNotConnected
	}
	return chain.Run(s.drv)
}

// snapshot reads the device-wide settings and both channels.
func (s *Server) snapshot() Status {
	st := Status{Connected: s.drv.IsConnected(), Path: s.drv.Path()}
	s.metrics.setConnected(st.Connected)
	if !st.Connected {
		return st
	}

	var err error
	if st.Output, err = s.drv.OutputEnabled(); err == nil {
		st.Active, err = s.drv.ActiveChannel()
	}
	for _, ch := range []mhs5200.Channel{mhs5200.Channel1, mhs5200.Channel2} {
		if err != nil {
			break
		}
		var cs mhs5200.Settings
		if cs, err = s.drv.ChannelSettings(ch); err == nil {
			st.Channels = append(st.Channels, cs)
		}
	}
	if err != nil {
		s.metrics.pollErrors.Inc()
		st.Error = err.Error()
	}
	return st
}

// pollLoop broadcasts a status snapshot every poll interval while at
// least one client is listening.
func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.clientCount() == 0 {
				s.metrics.setConnected(s.drv.IsConnected())
				continue
			}
			st := s.snapshot()
			if st.Error != "" {
				s.log.Debugf("status poll: %s", st.Error)
			}
			s.broadcast(Message{Type: "status", Status: &st, Stamp: time.Now().UnixMilli()})
		}
	}
}

func (s *Server) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.snapshot()
	code := http.StatusOK
	if !st.Connected {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.drv.IsConnected()
	code := http.StatusOK
	if !connected {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]bool{"connected": connected})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Save(); err != nil {
			s.log.Errorf("config save failed: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
