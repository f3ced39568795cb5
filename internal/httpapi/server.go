// Package httpapi publishes the latest ranked snapshot over HTTP.
//
// Handlers only read the last published tracker.Update; the reset endpoint
// hands its work to the tracker loop so the loop stays the single writer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/internal/device"
	"github.com/srg/blerank/internal/registry"
	"github.com/srg/blerank/internal/tracker"
)

const shutdownTimeout = 2 * time.Second

// Submitter runs work on the tracker loop. *tracker.Loop satisfies it.
type Submitter interface {
	Submit(task func(*tracker.Tracker)) error
}

// Server serves the device API.
type Server struct {
	latest atomic.Pointer[tracker.Update]
	loop   Submitter
	logger *logrus.Logger
	router *mux.Router
}

type devicesResponse struct {
	Session string            `json:"session"`
	Seq     uint64            `json:"seq"`
	Devices registry.Snapshot `json:"devices"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the router. loop may be nil, in which case reset is unavailable.
func NewServer(loop Submitter, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		loop:   loop,
		logger: logger,
		router: mux.NewRouter(),
	}

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods("GET")
	s.router.HandleFunc("/devices", s.handleDevices).Methods("GET")
	s.router.HandleFunc("/devices/{address}", s.handleDevice).Methods("GET")
	s.router.HandleFunc("/session/reset", s.handleReset).Methods("POST")
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Publish makes u the update served to readers. Call it from the loop's sink.
func (s *Server) Publish(u tracker.Update) {
	s.latest.Store(&u)
}

func (s *Server) current() tracker.Update {
	if u := s.latest.Load(); u != nil {
		return *u
	}
	return tracker.Update{}
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	u := s.current()
	resp := devicesResponse{
		Seq:     u.Seq,
		Devices: u.Snapshot,
	}
	if s.latest.Load() != nil {
		resp.Session = u.SessionID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	snap := s.current().Snapshot

	i := snap.IndexOf(address)
	if i < 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("device %s not found", address)})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Rank   int           `json:"rank"`
		Record device.Record `json:"record"`
	}{Rank: i + 1, Record: snap.At(i)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.loop == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "reset is not available"})
		return
	}
	err := s.loop.Submit(func(t *tracker.Tracker) {
		t.Reset()
	})
	if err != nil {
		s.logger.WithError(err).Warn("Session reset rejected")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	s.logger.Info("Session reset requested over HTTP")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Serve accepts connections on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.WithField("addr", ln.Addr().String()).Info("HTTP API listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
