package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/protocol"
	"shipscore.ai/internal/vschem/schemerr"
)

const defaultMaxUpload = 8 << 20

// Journal receives every successful report.
type Journal interface {
	WriteReport(r *analysis.Report) error
}

// Index receives every successful report; it must not block.
type Index interface {
	RecordAnalysis(r *analysis.Report)
}

type Options struct {
	Analyzer       *analysis.Analyzer
	Journal        Journal
	Index          Index
	Logger         *log.Logger
	MaxUploadBytes int64
}

type Server struct {
	analyzer  *analysis.Analyzer
	journal   Journal
	index     Index
	log       *log.Logger
	maxUpload int64

	upgrader websocket.Upgrader

	// Hijacked websocket connections are invisible to http.Server.Shutdown.
	mu      sync.Mutex
	conns   map[*websocket.Conn]context.CancelFunc
	closing bool
	sessWG  sync.WaitGroup

	rated    atomic.Uint64
	failed   atomic.Uint64
	sessions atomic.Int64
}

// Metrics is a point-in-time view of the server counters.
type Metrics struct {
	Rated    uint64
	Failed   uint64
	Sessions int64
}

func (s *Server) Metrics() Metrics {
	return Metrics{
		Rated:    s.rated.Load(),
		Failed:   s.failed.Load(),
		Sessions: s.sessions.Load(),
	}
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	limit := opts.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	return &Server{
		analyzer:  opts.Analyzer,
		journal:   opts.Journal,
		index:     opts.Index,
		log:       logger,
		maxUpload: limit,
		conns:     map[*websocket.Conn]context.CancelFunc{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Routes mounts the rating endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/ws", s.Handler())
	mux.HandleFunc("/v1/rate", s.RateHandler())
	mux.HandleFunc("/healthz", s.HealthHandler())
}

// rateError is a failed rating together with its wire code.
type rateError struct {
	code string
	err  error
}

func (e *rateError) Error() string { return e.err.Error() }

func (s *Server) rate(ctx context.Context, requestID, fileName, mention string, data []byte) (protocol.RatingMsg, *rateError) {
	if int64(len(data)) > s.maxUpload {
		s.failed.Add(1)
		return protocol.RatingMsg{}, &rateError{code: protocol.ErrTooLarge, err: fmt.Errorf("upload is %d bytes, limit %d", len(data), s.maxUpload)}
	}
	start := time.Now()
	rep, err := s.analyzer.Analyze(ctx, fileName, data)
	if err != nil {
		code := schemerr.Code(err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = protocol.ErrInternal
		}
		s.failed.Add(1)
		s.log.Printf("rate %s request=%s failed code=%s: %v", fileName, requestID, code, err)
		return protocol.RatingMsg{}, &rateError{code: code, err: err}
	}
	counts, err := json.Marshal(rep.Counts)
	if err != nil {
		return protocol.RatingMsg{}, &rateError{code: protocol.ErrInternal, err: err}
	}

	s.rated.Add(1)
	if s.journal != nil {
		if err := s.journal.WriteReport(rep); err != nil {
			s.log.Printf("journal %s: %v", rep.ID, err)
		}
	}
	if s.index != nil {
		s.index.RecordAnalysis(rep)
	}
	s.log.Printf("rated %s request=%s id=%s blocks=%d power=%d took=%s",
		fileName, requestID, rep.ID, rep.Stats.TotalBlockCount, rep.Stats.TotalPower, time.Since(start).Round(time.Microsecond))

	return protocol.RatingMsg{
		Type:            protocol.TypeRating,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		AnalysisID:      rep.ID,
		FileName:        fileName,
		Digest:          rep.Digest,
		Stats:           protocol.StatsOf(rep.Stats),
		Contraptions:    rep.Contraptions,
		Counts:          counts,
		Summary:         analysis.Summary(mention, rep.Stats),
	}, nil
}

// Handler serves the websocket rating session: each RATE is answered by a
// RATING or an ERROR, in order.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		if !s.track(conn, cancel) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
		defer s.untrack(conn)

		// base64 grows the payload by 4/3; leave room for the envelope.
		conn.SetReadLimit(s.maxUpload/3*4 + 64*1024)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if errors.Is(err, websocket.ErrReadLimit) {
					_ = writeJSON(conn, protocol.NewError("", protocol.ErrTooLarge, "message exceeds upload limit"))
				}
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json"))
				continue
			}
			if base.Type != protocol.TypeRate {
				_ = writeJSON(conn, protocol.NewError(base.RequestID, protocol.ErrProtoBadRequest, "expected RATE"))
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				_ = writeJSON(conn, protocol.NewError(base.RequestID, protocol.ErrProtoBadRequest, "bad protocol_version"))
				continue
			}
			if err := protocol.Validate(msg); err != nil {
				_ = writeJSON(conn, protocol.NewError(base.RequestID, protocol.ErrProtoBadRequest, err.Error()))
				continue
			}
			var req protocol.RateMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				_ = writeJSON(conn, protocol.NewError(base.RequestID, protocol.ErrProtoBadRequest, "bad data encoding"))
				continue
			}

			var out any
			rating, rerr := s.rate(ctx, req.RequestID, req.FileName, req.Mention, req.Data)
			if rerr != nil {
				out = protocol.NewError(req.RequestID, rerr.code, rerr.Error())
			} else {
				out = rating
			}
			if err := writeJSON(conn, out); err != nil {
				return
			}
		}
	}
}

func (s *Server) track(conn *websocket.Conn, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = cancel
	s.sessWG.Add(1)
	s.sessions.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.sessions.Add(-1)
	s.sessWG.Done()
}

// CloseSessions refuses new websocket sessions and ends the open ones: an
// in-flight rating is canceled and blocked reads fail at once. It suits
// http.Server.RegisterOnShutdown.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	s.closing = true
	open := make(map[*websocket.Conn]context.CancelFunc, len(s.conns))
	for c, cancel := range s.conns {
		open[c] = cancel
	}
	s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for conn, cancel := range open {
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = conn.SetReadDeadline(time.Now())
	}
}

// WaitSessions ends the open sessions and blocks until their handlers have
// returned or ctx is done. No report is written by a session afterwards.
func (s *Server) WaitSessions(ctx context.Context) error {
	s.CloseSessions()
	done := make(chan struct{})
	go func() {
		s.sessWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateHandler rates a raw container POSTed as the request body.
func (s *Server) RateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		requestID := r.Header.Get("X-Request-ID")
		name := strings.TrimSpace(r.Header.Get("X-File-Name"))
		if name == "" {
			name = "upload.vschem"
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, s.maxUpload+1))
		if err != nil {
			writeHTTP(rw, http.StatusBadRequest, protocol.NewError(requestID, protocol.ErrBadRequest, err.Error()))
			return
		}
		rating, rerr := s.rate(r.Context(), requestID, name, r.URL.Query().Get("mention"), body)
		if rerr != nil {
			writeHTTP(rw, statusFor(rerr.code), protocol.NewError(requestID, rerr.code, rerr.Error()))
			return
		}
		writeHTTP(rw, http.StatusOK, rating)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"ok": true, "protocol_version": protocol.Version}
		if s.analyzer != nil && s.analyzer.Scores != nil {
			if t := s.analyzer.Scores.Table(); t != nil {
				resp["score_digest"] = t.Digest
				resp["score_rules"] = len(t.Rules)
			}
		}
		writeHTTP(rw, http.StatusOK, resp)
	}
}

func statusFor(code string) int {
	switch code {
	case protocol.ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	case protocol.ErrFormat, protocol.ErrSchema, protocol.ErrIndex:
		return http.StatusUnprocessableEntity
	case protocol.ErrBadRequest, protocol.ErrProtoBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeHTTP(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
