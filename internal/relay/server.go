package relay

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/discovery"
	"github.com/SpatiumPortae/lanbeam/internal/logger"
	"github.com/SpatiumPortae/lanbeam/internal/semver"
	"github.com/SpatiumPortae/lanbeam/templates"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server contains the necessary data to run the signaling relay.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	rooms      *Rooms
	logger     *zap.Logger
	templates  map[string]*template.Template
	version    semver.Version
	advertise  bool
	port       int
}

type Option func(*Server)

// WithLogger sets the logger of the relay, the default is the production logger.
func WithLogger(lgr *zap.Logger) Option {
	return func(s *Server) {
		s.logger = lgr
	}
}

// WithAdvertise announces the relay on the local network while it serves.
func WithAdvertise(advertise bool) Option {
	return func(s *Server) {
		s.advertise = advertise
	}
}

// NewServer constructs a new Server and sets up its routes.
func NewServer(port int, version semver.Version, opts ...Option) (*Server, error) {
	tmpls, err := templates.Load()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	router := &mux.Router{}
	s := &Server{
		router:    router,
		rooms:     NewRooms(),
		templates: tmpls,
		version:   version,
		port:      port,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.New()
	}
	stdLoggerWrapper, _ := zap.NewStdLogAt(s.logger, zap.ErrorLevel)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		ReadHeaderTimeout: 30 * time.Second,
		Handler:           router,
		ErrorLog:          stdLoggerWrapper,
	}
	s.routes()
	return s, nil
}

// Handler returns the root handler of the relay.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the relay until the context is canceled, then shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errC := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	s.logger.
		With(zap.String("version", s.version.String())).
		With(zap.String("address", s.httpServer.Addr)).
		Info("serving lanbeam relay")

	if s.advertise {
		stop, err := discovery.Advertise(s.port, s.version.String())
		if err != nil {
			s.logger.Warn("advertising relay on the local network", zap.Error(err))
		} else {
			defer stop()
			s.logger.Info("advertising relay", zap.String("service", discovery.ServiceType))
		}
	}

	select {
	case err := <-errC:
		return fmt.Errorf("serving relay: %w", err)
	case <-ctx.Done():
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("shutting down relay: %w", err)
	}
	s.logger.Info("lanbeam relay shutdown successfully")
	return nil
}

// Members returns the number of peers currently in the session.
func (s *Server) Members(session string) int {
	return s.rooms.Size(session)
}
