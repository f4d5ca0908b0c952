package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
)

// Server is the HTTP API server. It listens on a Unix socket only reachable
// by the current user.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	wsHandler  *WSHandler
	listener   net.Listener
	path       string
}

// NewServer creates the socket at path and routes the API onto it. A stale
// socket file left by a previous run is replaced.
func NewServer(path string, handlers *Handlers, wsHandler *WSHandler) (*Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", handlers.HandleStatus)
	mux.HandleFunc("/api/v1/timer", handlers.HandleTimer)
	mux.HandleFunc("/api/v1/timer/{method}", handlers.HandleTimerCall)
	mux.HandleFunc("/api/v1/ws", wsHandler.HandleWS)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	httpServer := &http.Server{
		Handler:     sameUser(mux),
		ConnContext: connContext,
	}

	return &Server{
		httpServer: httpServer,
		handlers:   handlers,
		wsHandler:  wsHandler,
		listener:   listener,
		path:       path,
	}, nil
}

// Start begins serving HTTP requests. This is non-blocking.
func (s *Server) Start() error {
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the socket path the server is listening on.
func (s *Server) Addr() string {
	return s.path
}

// Shutdown closes WebSocket connections, gracefully stops the HTTP server
// and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHandler.CloseAll()
	err := s.httpServer.Shutdown(ctx)
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// WSHandler returns the WebSocket handler.
func (s *Server) WSHandler() *WSHandler {
	return s.wsHandler
}
