package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sharetube/tandem/internal/controller"
	"github.com/sharetube/tandem/internal/repository/connection/inmemory"
	"github.com/sharetube/tandem/internal/repository/room"
	roomInmemory "github.com/sharetube/tandem/internal/repository/room/inmemory"
	roomRedis "github.com/sharetube/tandem/internal/repository/room/redis"
	roomService "github.com/sharetube/tandem/internal/service/room"
	"github.com/sharetube/tandem/pkg/ctxlogger"
	"github.com/sharetube/tandem/pkg/redisclient"
)

const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

type AppConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	LogLevel       string        `json:"log_level"`
	Registry       string        `json:"registry"`
	MembersLimit   int           `json:"members_limit"`
	RoomTTL        time.Duration `json:"room_ttl"`
	SendBuffer     int           `json:"send_buffer"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RedisPort      int           `json:"redis_port"`
	RedisHost      string        `json:"redis_host"`
	RedisPassword  string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 2 {
		return fmt.Errorf("members limit must be at least 2")
	}
	if cfg.SendBuffer < 1 {
		return fmt.Errorf("send buffer must be greater than 0")
	}
	if cfg.Registry != RegistryMemory && cfg.Registry != RegistryRedis {
		return fmt.Errorf("unknown registry %q, expected %q or %q", cfg.Registry, RegistryMemory, RegistryRedis)
	}
	if cfg.Registry == RegistryRedis && cfg.RoomTTL < time.Second {
		return fmt.Errorf("room ttl must be at least 1s")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLogLevel(level string) (slog.Level, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return logLevel, fmt.Errorf("invalid log level: %w", err)
	}

	return logLevel, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}),
	}

	return slog.New(&h)
}

type roomRegistry interface {
	CreateRoom(context.Context, *room.CreateRoomParams) error
	JoinRoom(context.Context, *room.JoinRoomParams) ([]room.Member, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	RemoveConnection(context.Context, string) (room.RemoveConnectionResponse, error)
	GetRoomId(context.Context, string) (string, error)
	GetMembers(context.Context, string) ([]room.Member, error)
	RefreshRoom(context.Context, string) error
}

// newRoomRegistry returns the configured registry and a func releasing its resources.
func newRoomRegistry(cfg *AppConfig, logger *slog.Logger) (roomRegistry, func() error, error) {
	switch cfg.Registry {
	case RegistryRedis:
		rc, err := redisclient.NewRedisClient(&redisclient.Config{
			Port:     cfg.RedisPort,
			Host:     cfg.RedisHost,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
		}

		return roomRedis.NewRepo(rc, cfg.MembersLimit, cfg.RoomTTL, logger), rc.Close, nil
	default:
		return roomInmemory.NewRepo(cfg.MembersLimit, logger), func() error { return nil }, nil
	}
}

// newHandler returns the router and a func closing every open websocket.
func newHandler(cfg *AppConfig, registry roomRegistry, logger *slog.Logger) (http.Handler, func()) {
	connectionRepo := inmemory.NewRepo(logger)
	roomService := roomService.NewService(registry, connectionRepo, logger)
	controller := controller.NewController(roomService, &controller.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
	}, logger)

	return controller.GetMux(), connectionRepo.CloseAll
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stdout, logLevel)

	registry, closeRegistry, err := newRoomRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	handler, closePeers := newHandler(cfg, registry, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: handler,
	}
	// Shutdown does not track hijacked connections.
	server.RegisterOnShutdown(closePeers)

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	sigCtx, stop := signal.NotifyContext(serverCtx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		<-sigCtx.Done()

		shutdownCtx, c := context.WithTimeout(context.WithoutCancel(serverCtx), 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "failed to shutdown server", "error", err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr, "registry", cfg.Registry)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-serverCtx.Done()

	return nil
}
