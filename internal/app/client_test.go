package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sharetube/tandem/internal/platform/spotify"
	"github.com/sharetube/tandem/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func validClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:         "ws://localhost:8080/api/v1/ws",
		DisplayName:       "Alice",
		PollInterval:      time.Second,
		SettleInterval:    50 * time.Millisecond,
		RequestTimeout:    5 * time.Second,
		ReconnectAttempts: 5,
		ReconnectMaxDelay: 10 * time.Second,
		LogLevel:          "error",
	}
}

func TestClientConfigValidate(t *testing.T) {
	require.NoError(t, validClientConfig().Validate())

	tests := map[string]func(cfg *ClientConfig){
		"scheme":             func(cfg *ClientConfig) { cfg.ServerURL = "http://localhost:8080" },
		"display name":       func(cfg *ClientConfig) { cfg.DisplayName = strings.Repeat("a", 65) },
		"poll interval":      func(cfg *ClientConfig) { cfg.PollInterval = time.Millisecond },
		"settle interval":    func(cfg *ClientConfig) { cfg.SettleInterval = -time.Millisecond },
		"request timeout":    func(cfg *ClientConfig) { cfg.RequestTimeout = 0 },
		"reconnect attempts": func(cfg *ClientConfig) { cfg.ReconnectAttempts = 0 },
		"reconnect delay":    func(cfg *ClientConfig) { cfg.ReconnectMaxDelay = 0 },
		"log level":          func(cfg *ClientConfig) { cfg.LogLevel = "loud" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validClientConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewDevice(t *testing.T) {
	cfg := validClientConfig()

	device, library := newDevice(cfg)
	assert.IsType(t, &playback.FakeDevice{}, device)
	assert.Nil(t, library)

	cfg.SpotifyToken = "token"
	device, library = newDevice(cfg)
	assert.IsType(t, &spotify.Client{}, device)
	assert.NotNil(t, library)
}

func TestRunClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, _, err := newRoomRegistry(validConfig(), logger)
	require.NoError(t, err)
	handler, _ := newHandler(validConfig(), registry, logger)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := validClientConfig()
	cfg.ServerURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	out := &lockedBuffer{}
	err = RunClient(context.Background(), cfg, &EnterParams{Create: true, RoomId: "ab12cd"}, strings.NewReader("play\nstatus\nleave\n"), out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "offline player")
	assert.Contains(t, out.String(), "AB12CD")
	assert.Contains(t, out.String(), "position")

	require.Eventually(t, func() bool {
		members, err := registry.GetMembers(context.Background(), "AB12CD")
		return err == nil && len(members) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunClientJoinMissingRoom(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, _, err := newRoomRegistry(validConfig(), logger)
	require.NoError(t, err)
	handler, _ := newHandler(validConfig(), registry, logger)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := validClientConfig()
	cfg.ServerURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	err = RunClient(context.Background(), cfg, &EnterParams{RoomId: "NOPE42"}, strings.NewReader(""), io.Discard)
	assert.ErrorContains(t, err, "room not found")
}
