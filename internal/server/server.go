// Package server accepts snapshot events and announcements over a
// websocket and feeds them to the intake.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/diff"
	"github.com/nidza07/nvda/internal/intake"
	"github.com/nidza07/nvda/internal/speech"
)

// Path is where the websocket endpoint is mounted by ListenAndServe.
const Path = "/events"

// Message types.
const (
	TypeSnapshot = "snapshot"
	TypeAnnounce = "announce"
	TypeCancel   = "cancel"
	TypeSilence  = "silence"
	TypeAck      = "ack"
	TypeError    = "error"
)

const (
	maxMessageSize  = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// ErrUnknownType is reported for messages with an unrecognized type.
var ErrUnknownType = errors.New("unknown message type")

// Request is a message sent by a client.
type Request struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	Source    string `json:"source,omitempty"`
	Text      string `json:"text,omitempty"`
	Caret     *int   `json:"caret,omitempty"`
	PrevCaret *int   `json:"prev_caret,omitempty"`
	Typed     bool   `json:"typed,omitempty"`
	Role      string `json:"role,omitempty"`

	Priority string `json:"priority,omitempty"`
	Preserve bool   `json:"preserve,omitempty"`
	Braille  bool   `json:"braille,omitempty"`
	Dedupe   bool   `json:"dedupe,omitempty"`
}

// Reply answers a single request.
type Reply struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Canceled int    `json:"canceled,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Controls is the part of the dispatcher clients may drive.
type Controls interface {
	Cancel(sourceID string) int
	Silence() int
}

// Server is an http.Handler serving the websocket protocol.
type Server struct {
	intake   *intake.Intake
	controls Controls
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server. controls may be nil, in which case cancel and
// silence requests are answered with an error.
func New(in *intake.Intake, controls Controls) *Server {
	return &Server{
		intake:   in,
		controls: controls,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are local processes, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.Default().WithPrefix("server"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and serves requests until the client
// goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s.track(conn, true)
	defer s.track(conn, false)
	defer conn.Close() //nolint:errcheck

	s.logger.Debug("Client connected", "remote", r.RemoteAddr)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Websocket read failed", "remote", r.RemoteAddr, "err", err)
			}
			s.logger.Debug("Client disconnected", "remote", r.RemoteAddr)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		reply := s.handle(data)
		out, err := sonic.Marshal(reply)
		if err != nil {
			s.logger.Error("Failed to encode reply", "err", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			s.logger.Warn("Websocket write failed", "remote", r.RemoteAddr, "err", err)
			return
		}
	}
}

func (s *Server) handle(data []byte) Reply {
	var req Request
	if err := sonic.Unmarshal(data, &req); err != nil {
		return Reply{Type: TypeError, Error: fmt.Sprintf("invalid message: %v", err)}
	}

	n, err := s.dispatch(req)
	if err != nil {
		s.logger.Debug("Request failed", "type", req.Type, "id", req.ID, "err", err)
		return Reply{Type: TypeError, ID: req.ID, Error: err.Error()}
	}
	return Reply{Type: TypeAck, ID: req.ID, Canceled: n}
}

func (s *Server) dispatch(req Request) (int, error) {
	switch req.Type {
	case TypeSnapshot:
		ev, err := req.event()
		if err != nil {
			return 0, err
		}
		return 0, s.intake.Process(ev)

	case TypeAnnounce:
		p, err := speech.ParsePriority(req.Priority)
		if err != nil {
			return 0, err
		}
		return 0, s.intake.Announce(intake.Announcement{
			Text:     req.Text,
			Priority: p,
			SourceID: req.Source,
			Preserve: req.Preserve,
			Braille:  req.Braille,
			Dedupe:   req.Dedupe,
		})

	case TypeCancel, TypeSilence:
		if s.controls == nil {
			return 0, fmt.Errorf("%s is not available", req.Type)
		}
		if req.Type == TypeSilence {
			return s.controls.Silence(), nil
		}
		return s.controls.Cancel(req.Source), nil

	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
}

func (r Request) event() (intake.Event, error) {
	role, err := classify.ParseRole(r.Role)
	if err != nil {
		return intake.Event{}, err
	}
	ctx := classify.Context{
		Caret:     classify.NoCaret,
		PrevCaret: classify.NoCaret,
		UserTyped: r.Typed,
		Role:      role,
		SourceID:  r.Source,
	}
	if r.Caret != nil {
		ctx.Caret = *r.Caret
	}
	if r.PrevCaret != nil {
		ctx.PrevCaret = *r.PrevCaret
	}
	return intake.Event{New: diff.NewSnapshot(r.Text), Context: ctx}, nil
}

func (s *Server) track(conn *websocket.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// closeAll closes every open connection. http.Server.Shutdown does not
// touch hijacked connections.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// ListenAndServe serves the websocket endpoint on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(Path, otelhttp.NewHandler(s, "server.events"))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", addr, "path", Path)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.logger.Debug("Server stopped")
	return nil
}
