// Package ws exposes the verbs and events of a [memory.Host] over websocket.
//
// Clients send [Request] frames and receive a [Reply] for each of them.
// Event payloads of the subscribed events are forwarded as [EventMessage] frames.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/squadracorsepolito/acmesig/host/memory"
	"github.com/squadracorsepolito/acmesig/internal"
	"go.opentelemetry.io/otel/metric"
)

type Server struct {
	tel *internal.Telemetry
	cfg *Config

	host     *memory.Host
	upgrader websocket.Upgrader
	srv      *http.Server

	nextID   atomic.Uint64
	sessions sync.Map
	wg       sync.WaitGroup

	// Telemetry metrics
	openConns metric.Int64UpDownCounter
	calls     metric.Int64Counter
}

func NewServer(cfg *Config, host *memory.Host) *Server {
	s := &Server{
		tel: internal.NewTelemetry("host", "websocket"),
		cfg: cfg,

		host: host,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWebSocket)

	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	s.openConns = s.tel.NewUpDownCounter("open_connections")
	s.calls = s.tel.NewCounter("verb_calls")

	return s
}

// Handler returns the http handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until the context is done.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.tel.LogInfo("serving", "addr", listener.Addr().String(), "path", s.cfg.Path)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.tel.LogWarn("failed to shutdown http server", "reason", err)
		}
	}()

	if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop closes the open connections and waits for their release.
func (s *Server) Stop() {
	s.sessions.Range(func(_, value any) bool {
		value.(*session).conn.Close()
		return true
	})
	s.wg.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.tel.LogWarn("failed to upgrade connection", "remote", r.RemoteAddr, "reason", err)
		return
	}

	id := fmt.Sprintf("ws-%d", s.nextID.Add(1))
	client, err := s.host.Connect(id, s.cfg.ClientBuffer)
	if err != nil {
		s.tel.LogError("failed to open session", err, "session", id)
		conn.Close()
		return
	}

	s.tel.LogDebug("client connected", "session", id, "remote", r.RemoteAddr)
	s.openConns.Add(r.Context(), 1)

	sc := &session{
		srv:    s,
		conn:   conn,
		client: client,
	}

	s.sessions.Store(id, sc)

	s.wg.Add(2)
	go sc.writeEvents()
	go sc.readRequests()
}

type session struct {
	srv *Server

	conn   *websocket.Conn
	wMux   sync.Mutex
	client *memory.Client
}

func (sc *session) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	sc.wMux.Lock()
	defer sc.wMux.Unlock()

	if err := sc.conn.SetWriteDeadline(time.Now().Add(sc.srv.cfg.WriteTimeout)); err != nil {
		return err
	}

	return sc.conn.WriteMessage(websocket.TextMessage, data)
}

func (sc *session) writeEvents() {
	defer sc.srv.wg.Done()

	for delivery := range sc.client.Deliveries() {
		if err := sc.write(&EventMessage{Event: delivery.Event, Data: delivery.Data}); err != nil {
			sc.srv.tel.LogWarn("failed to forward event", "session", sc.client.ID(), "event", delivery.Event, "reason", err)
		}
	}
}

func (sc *session) readRequests() {
	defer sc.srv.wg.Done()
	defer sc.close()

	for {
		_, data, err := sc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.srv.tel.LogWarn("unexpected close", "session", sc.client.ID(), "reason", err)
			}
			return
		}

		req := Request{}
		if err := json.Unmarshal(data, &req); err != nil {
			reply := &Reply{Status: StatusFailed, Error: &ReplyError{UID: "invalid-request", Info: err.Error()}}
			if err := sc.write(reply); err != nil {
				return
			}
			continue
		}

		if err := sc.write(sc.call(&req)); err != nil {
			sc.srv.tel.LogWarn("failed to write reply", "session", sc.client.ID(), "reason", err)
			return
		}
	}
}

func (sc *session) call(req *Request) *Reply {
	ctx := context.Background()
	sc.srv.calls.Add(ctx, 1)

	if req.Verb == InfoVerb {
		verbs := sc.srv.host.Verbs()
		infos := make([]VerbInfo, 0, len(verbs))
		for _, verb := range verbs {
			infos = append(infos, newVerbInfo(verb))
		}
		return newReply(req.ID, infos, nil)
	}

	args := []byte(req.Args)
	if len(args) == 0 {
		args = []byte("{}")
	}

	response, err := sc.srv.host.Call(ctx, sc.client, req.Verb, args)
	return newReply(req.ID, response, err)
}

func (sc *session) close() {
	sc.srv.sessions.Delete(sc.client.ID())

	if err := sc.srv.host.Disconnect(sc.client.ID()); err != nil && !errors.Is(err, memory.ErrSessionNotFound) {
		sc.srv.tel.LogWarn("failed to close session", "session", sc.client.ID(), "reason", err)
	}

	sc.conn.Close()
	sc.srv.openConns.Add(context.Background(), -1)
	sc.srv.tel.LogDebug("client disconnected", "session", sc.client.ID())
}
