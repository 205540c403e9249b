package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/tandem/internal/console"
	"github.com/sharetube/tandem/internal/platform/spotify"
	"github.com/sharetube/tandem/internal/playback"
	"github.com/sharetube/tandem/internal/presence"
	"github.com/sharetube/tandem/internal/relayclient"
	"github.com/sharetube/tandem/internal/session"
	"github.com/sharetube/tandem/internal/ui"
	"github.com/sharetube/tandem/pkg/ctxlogger"
)

const (
	togetherWindow   = 2500 * time.Millisecond
	clientSendBuffer = 64
)

type ClientConfig struct {
	ServerURL         string        `json:"server_url"`
	DisplayName       string        `json:"display_name"`
	AvatarURL         string        `json:"avatar_url"`
	SpotifyToken      string        `json:"-"`
	SpotifyAPIURL     string        `json:"spotify_api_url"`
	PollInterval      time.Duration `json:"poll_interval"`
	SettleInterval    time.Duration `json:"settle_interval"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	ReconnectMaxDelay time.Duration `json:"reconnect_max_delay"`
	LogLevel          string        `json:"log_level"`
}

func (cfg *ClientConfig) Validate() error {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server url must use ws or wss, got %q", u.Scheme)
	}
	if len(cfg.DisplayName) > 64 {
		return fmt.Errorf("display name must be at most 64 characters")
	}
	if cfg.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll interval must be at least 100ms")
	}
	if cfg.SettleInterval < 0 {
		return fmt.Errorf("settle interval must not be negative")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if cfg.ReconnectAttempts < 1 {
		return fmt.Errorf("reconnect attempts must be at least 1")
	}
	if cfg.ReconnectMaxDelay <= 0 {
		return fmt.Errorf("reconnect max delay must be greater than 0")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// EnterParams selects how the client enters a room. An empty RoomId with
// Create asks for a generated id.
type EnterParams struct {
	Create bool
	RoomId string
}

func newTextLogger(w io.Writer, level slog.Level) *slog.Logger {
	h := ctxlogger.ContextHandler{
		Handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
	}

	return slog.New(&h)
}

// newDevice falls back to an in-memory player when no token is configured.
// The returned library is nil in that case.
func newDevice(cfg *ClientConfig) (playback.Device, console.Library) {
	if cfg.SpotifyToken == "" {
		return playback.NewFakeDevice(playback.State{}), nil
	}

	client := spotify.New(spotify.Config{
		BaseURL:     cfg.SpotifyAPIURL,
		AccessToken: cfg.SpotifyToken,
	})

	return client, client
}

func enter(ctx context.Context, s *session.Session, params *EnterParams, out io.Writer) error {
	if params.Create {
		roomId, err := s.Create(ctx, params.RoomId)
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}

		fmt.Fprintln(out, ui.RoomBox(roomId))
		return nil
	}

	resp, err := s.Join(ctx, params.RoomId)
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	if resp.Partner != nil {
		ui.PrintSuccess(out, fmt.Sprintf("joined %s with %s", resp.RoomId, resp.Partner.DisplayName))
	} else {
		ui.PrintSuccess(out, "joined "+resp.RoomId)
	}

	return nil
}

// RunClient connects, enters a room and hands in over to the console until
// the user leaves or a signal arrives.
func RunClient(ctx context.Context, cfg *ClientConfig, params *EnterParams, in io.Reader, out io.Writer) error {
	logLevel, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger := newTextLogger(os.Stderr, logLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := relayclient.New(relayclient.Config{
		URL:                   cfg.ServerURL,
		RequestTimeout:        cfg.RequestTimeout,
		ReconnectAttempts:     cfg.ReconnectAttempts,
		ReconnectInitialDelay: 500 * time.Millisecond,
		ReconnectMaxDelay:     cfg.ReconnectMaxDelay,
		SendBuffer:            clientSendBuffer,
	}, logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	device, library := newDevice(cfg)
	if library == nil {
		ui.PrintWarning(out, "no Spotify token, using an offline player")
	}

	clk := clock.New()
	player := playback.NewController(device, playback.Config{PollInterval: cfg.PollInterval}, clk, logger)
	if _, err := player.Refresh(ctx); err != nil {
		logger.Warn("failed to read player state", "error", err)
	}

	machine := presence.New(logger)
	s := session.New(client, player, machine, session.Config{
		DisplayName:    cfg.DisplayName,
		AvatarURL:      cfg.AvatarURL,
		SettleInterval: cfg.SettleInterval,
		TogetherWindow: togetherWindow,
	}, clk, logger)
	con := console.New(s, library, machine, player, out, logger)

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{machine.Run, player.Run, s.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("client loop stopped", "error", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		con.Follow(runCtx, s.Notifications())
	}()
	defer func() {
		cancel()
		client.Close()
		wg.Wait()
	}()

	if err := enter(ctx, s, params, out); err != nil {
		return err
	}

	if err := con.Run(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if s.RoomId() != "" {
		if err := s.Leave(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to leave room", "error", err)
		}
	}

	return nil
}
