package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/judgegodwins/chess-relay/room"
	"github.com/judgegodwins/chess-relay/util"
	"github.com/judgegodwins/chess-relay/ws"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Server struct {
	config     *util.Config
	registry   *room.Registry
	wsManager  *ws.Manager
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(config *util.Config, registry *room.Registry, logger *zap.Logger) *Server {
	router := gin.New()

	server := &Server{
		config:   config,
		registry: registry,
		wsManager: ws.NewManager(ws.ManagerOptions{
			Registry:       registry,
			AllowedOrigins: config.AllowedOrigins,
			Logger:         logger,
		}),
		router: router,
		logger: logger.Named("api"),
	}

	router.Use(server.LoggerMiddleware, gin.Recovery())

	router.GET("/ws/game/:room_id", server.wsManager.ServeWS)
	router.GET("/ws/game/:room_id/", server.wsManager.ServeWS)
	router.GET("/healthz", server.Health)
	router.GET("/rooms/:room_id", server.GetRoom)

	server.httpServer = &http.Server{
		Addr:              config.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(s.router)
}

// Start blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
