// Package httpserver serves the HTTP API.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/functions/pushsubscription"
	"github.com/resq-app/resq-backend/internal/logging"
	rerrors "github.com/resq-app/resq-backend/internal/utils/errors"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	"go.opencensus.io/plugin/ochttp"
	"go.uber.org/zap"
)

// Config holds server config
type Config struct {
	Port string
}

// Routes are the handlers of the API. Nil handlers are not routed.
type Routes struct {
	Auther        auth.Auther
	Push          *pushsubscription.Handlers
	NearestAed    http.HandlerFunc
	Emergency     http.HandlerFunc
	SensorSamples http.HandlerFunc
}

// Server provides a gracefully-stoppable http server implementation. It is safe
// for concurrent use in goroutines.
type Server struct {
	ip       string
	port     string
	listener net.Listener
}

// NewHandler creates the HTTP handler
func NewHandler(ctx context.Context, routes Routes) (http.Handler, error) {
	logger := logging.FromContext(ctx)

	if routes.Auther == nil {
		return nil, fmt.Errorf("no auther configured")
	}

	mux := http.NewServeMux()
	authenticated := auth.Middleware(routes.Auther)

	handle := func(pattern string, h http.HandlerFunc, private bool) {
		if h == nil {
			return
		}
		var handler http.Handler = h
		if private {
			handler = authenticated(handler)
		}
		mux.Handle(pattern, handler)
		logger.Debugf("Routing %v", pattern)
	}

	handle("GET /healthz", healthz, false)
	handle("GET /aed/nearest", routes.NearestAed, false)

	if routes.Push != nil {
		handle("GET /user/push/vapid-key", routes.Push.VapidKey, true)
		handle("POST /user/push/subscribe", routes.Push.Subscribe, true)
		handle("POST /user/push/unsubscribe", routes.Push.Unsubscribe, true)
		handle("PUT /user/push/toggle", routes.Push.Toggle, true)
	}

	handle("POST /user/emergency", routes.Emergency, true)
	handle("POST /user/sensor/samples", routes.SensorSamples, true)

	return withContext(logger, mux), nil
}

func healthz(w http.ResponseWriter, r *http.Request) {
	httputils.SendResponse(w, r, struct {
		Success bool `json:"success"`
	}{Success: true})
}

// withContext gives every request the server logger and turns panics into 500 responses.
func withContext(logger *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(logging.WithLogger(r.Context(), logger))

		defer func() {
			if p := recover(); p != nil {
				logger.Errorf("Panic while handling %v %v: %v", r.Method, r.URL.Path, p)
				httputils.SendErrorResponse(w, r, &rerrors.UnknownError{Msg: "Unknown error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// NewServer creates the HTTP server
func NewServer(ctx context.Context, config *Config) (*Server, error) {

	// Create the net listener first, so the connection ready when we return. This
	// guarantees that it can accept requests.
	addr := ":" + config.Port
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener on %s: %w", addr, err)
	}

	return &Server{
		ip:       listener.Addr().(*net.TCPAddr).IP.String(),
		port:     strconv.Itoa(listener.Addr().(*net.TCPAddr).Port),
		listener: listener,
	}, nil
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.ip, s.port)
}

// Port returns the port the server listens on.
func (s *Server) Port() string {
	return s.port
}

// ServeHTTPHandler serves with the http handler
func (s *Server) ServeHTTPHandler(ctx context.Context, handler http.Handler) error {
	return s.ServeHTTP(ctx, &http.Server{
		Handler: &ochttp.Handler{
			Handler: handler,
		},
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// ServeHTTP serves srv until ctx is closed, then shuts it down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, srv *http.Server) error {
	logger := logging.FromContext(ctx)

	// Spawn a goroutine that listens for context closure. When the context is
	// closed, the server is stopped.
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()

		logger.Debugf("server.Serve: context closed")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()

		logger.Debugf("server.Serve: shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	// Run the server. This will block until the provided context is closed.
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	logger.Debugf("server.Serve: serving stopped")

	// Return any errors that happened during shutdown.
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to shutdown: %w", err)
	default:
		return nil
	}
}
