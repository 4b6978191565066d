package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zwennaf/dhaniverse/internal/market"
	"github.com/zwennaf/dhaniverse/internal/rooms"
	"github.com/zwennaf/dhaniverse/internal/runtime"
	"github.com/zwennaf/dhaniverse/pkg/log"
)

// Server exposes the room and market APIs over HTTP, with SSE streams
// for subscriptions.
type Server struct {
	rt     *runtime.Runtime
	logger log.Logger
	srv    *http.Server
	lis    net.Listener
}

// New builds the server around an opened runtime.
func New(rt *runtime.Runtime, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewLogger()
	}
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		logger: logger.WithComponent("http"),
		srv:    &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/rooms/subscribe", s.handleSubscribe)
	mux.HandleFunc("/v1/rooms/publish", s.handlePublish)
	mux.HandleFunc("/v1/rooms/leave", s.handleLeave)
	mux.HandleFunc("/v1/rooms/stats", s.handleRoomStats)
	mux.HandleFunc("/v1/rooms/peers", s.handlePeers)
	mux.HandleFunc("/v1/stocks", s.handleStock)
	mux.HandleFunc("/v1/market/summary", s.handleSummary)
	mux.HandleFunc("/v1/market/history", s.handleHistory)
	return s
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, market.ErrUnknownSymbol):
		status = http.StatusNotFound
	case errors.Is(err, rooms.ErrRoomFull):
		status = http.StatusTooManyRequests
	case errors.Is(err, rooms.ErrInvalidRoomID), errors.Is(err, rooms.ErrConnectionNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrProviderFailure):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// bearerToken extracts the credential from the Authorization header or
// the token query parameter.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
