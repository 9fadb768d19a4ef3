// internal/handlers/server.go
package handlers

import (
	"net/http"
	"time"

	"github.com/jason-s-yu/quizboard/internal/auth"
	"github.com/jason-s-yu/quizboard/internal/middleware"
	"github.com/jason-s-yu/quizboard/internal/room"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// DefaultReadLimit bounds inbound frames when Options.ReadLimit is unset.
const DefaultReadLimit int64 = 1 << 20

// Options tunes the transport side of the gateway.
type Options struct {
	SendBuffer     int
	ReadLimit      int64 // largest inbound frame in bytes
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
	PublicURL      string
}

// Server bundles everything the HTTP and websocket handlers share.
type Server struct {
	Rooms  *room.Registry
	Issuer *auth.Issuer
	Logger *logrus.Logger
	opts   Options
}

// NewServer creates a Server. Zero options fall back to defaults.
func NewServer(logger *logrus.Logger, rooms *room.Registry, issuer *auth.Issuer, opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 16
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		Rooms:  rooms,
		Issuer: issuer,
		Logger: logger,
		opts:   opts,
	}
}

// Routes builds the router with every endpoint behind the logging middleware.
func (s *Server) Routes() http.Handler {
	mux := httprouter.New()

	mux.GET("/healthz", s.HealthHandler)
	mux.GET("/rooms/:code", s.RoomSummaryHandler)
	mux.GET("/rooms/:code/qr.png", s.RoomQRHandler)

	// room websocket
	mux.GET("/ws", s.RoomWSHandler)

	return middleware.LogMiddleware(s.Logger)(mux)
}
