package relay

import (
	"net/http"

	"github.com/SpatiumPortae/lanbeam/internal/conn"
	"github.com/SpatiumPortae/lanbeam/internal/logger"
)

func (s *Server) routes() {
	s.router.Use(logger.Middleware(s.logger))
	s.router.HandleFunc("/ping", s.ping()).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersionCheck()).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleLanding()).Methods(http.MethodGet)
	s.router.Handle("/ws", conn.Middleware()(s.handleSignal()))
}
