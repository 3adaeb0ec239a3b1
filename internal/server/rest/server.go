// Package rest is the JSON-over-HTTP surface of the API: routing, request
// decoding, error mapping and the listening server.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server runs an http.Handler until its context is cancelled.
type Server struct {
	name    string
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewServer(name, address string, h http.Handler, l logging.Logger) *Server {
	return &Server{
		name:    name,
		address: address,
		handler: h,
		logger:  l.With("module", name),
	}
}

// Run listens on the configured address and blocks until ctx is done, then
// drains in-flight requests. A graceful stop returns nil.
func (s *Server) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping server...", "server", s.name)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting server", "server", s.name, "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-stopped
}
