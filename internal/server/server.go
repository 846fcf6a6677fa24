// Package server runs an http.Handler as a lifecycle-managed resource.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spounge-ai/polypay/pkg/patterns/lifecycle"
)

const readHeaderTimeout = 5 * time.Second

// Server serves a handler on a TCP address. The mock platform and the
// CLI's metrics endpoint both run on it.
type Server struct {
	name    string
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu      sync.Mutex
	srv     *http.Server
	lis     net.Listener
	serving chan struct{}
}

var _ lifecycle.ManagedResource = (*Server)(nil)

func New(name, addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		name:    name,
		addr:    addr,
		handler: handler,
		logger:  logger.With("server", name),
	}
}

// Addr is the bound address once started, which matters for ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return s.addr
	}
	return s.lis.Addr().String()
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s: failed to listen: %w", s.name, err)
	}
	s.lis = lis
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: readHeaderTimeout}
	s.serving = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", "error", err)
		}
	}(s.srv, s.serving)

	s.logger.InfoContext(ctx, "server listening", "address", lis.Addr().String())
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, serving := s.srv, s.serving
	s.srv, s.lis = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.InfoContext(ctx, "stopping server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", s.name, err)
	}
	<-serving
	return nil
}

func (s *Server) Health(context.Context) lifecycle.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return lifecycle.HealthStatus{Ready: false, Message: "not serving"}
	}
	return lifecycle.HealthStatus{Ready: true, Message: s.lis.Addr().String()}
}
