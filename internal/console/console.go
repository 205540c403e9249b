// Package console turns typed lines into session actions and prints what
// happens in the room.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/sharetube/tandem/internal/platform/spotify"
	"github.com/sharetube/tandem/internal/playback"
	"github.com/sharetube/tandem/internal/presence"
	"github.com/sharetube/tandem/internal/session"
	"github.com/sharetube/tandem/internal/ui"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("wrong usage")
	ErrNoLibrary      = errors.New("not available without a Spotify token")
)

const searchLimit = 5

type iSession interface {
	RoomId() string
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, positionMs int64) error
	ChangeTrack(ctx context.Context, uri, name string) error
	ShareCurrentTrack(ctx context.Context) error
	React(emoji string) error
	Leave(ctx context.Context) error
}

// Library is the part of the platform that is not needed for sync.
type Library interface {
	Queue(ctx context.Context, uri string) error
	Next(ctx context.Context) error
	Search(ctx context.Context, q string, limit int) ([]spotify.Track, error)
}

type iPresence interface {
	Snapshot() presence.State
}

type iPlayer interface {
	Snapshot() playback.State
	Position() int64
}

type Console struct {
	session  iSession
	library  Library
	presence iPresence
	player   iPlayer
	logger   *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	results []spotify.Track
}

// New accepts a nil library; queue, skip and search then report ErrNoLibrary.
func New(s iSession, library Library, p iPresence, player iPlayer, out io.Writer, logger *slog.Logger) *Console {
	return &Console{
		session:  s,
		library:  library,
		presence: p,
		player:   player,
		out:      out,
		logger:   logger,
	}
}

// Run reads commands from in until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			quit, err := c.Execute(ctx, line)
			if err != nil {
				c.print(ui.PrintError, err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	c.logger.Debug("command", "name", name, "args", len(args))

	switch name {
	case "play":
		return false, c.session.Play(ctx)
	case "pause":
		return false, c.session.Pause(ctx)
	case "seek":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: seek <m:ss|ms>", ErrUsage)
		}
		position, err := ParsePosition(args[0])
		if err != nil {
			return false, err
		}
		return false, c.session.Seek(ctx, position)
	case "track":
		return false, c.track(ctx, args)
	case "queue":
		return false, c.queue(ctx, args)
	case "skip":
		return false, c.skip(ctx)
	case "search":
		return false, c.search(ctx, strings.Join(args, " "))
	case "react":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: react <emoji>", ErrUsage)
		}
		return false, c.session.React(args[0])
	case "status":
		c.status()
		return false, nil
	case "help":
		c.print(ui.PrintInfo, help)
		return false, nil
	case "leave", "quit", "exit":
		if err := c.session.Leave(ctx); err != nil && !errors.Is(err, session.ErrNotInRoom) {
			return true, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w %q, try help", ErrUnknownCommand, name)
	}
}

const help = `commands:
  play | pause | seek <m:ss|ms>
  track <uri|#> | queue <uri|#> | skip | search <query>
  react <emoji> | status | leave`

// ParsePosition accepts m:ss or plain milliseconds.
func ParsePosition(s string) (int64, error) {
	minutes, seconds, ok := strings.Cut(s, ":")
	if !ok {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		return ms, nil
	}

	m, err := strconv.ParseInt(minutes, 10, 64)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	sec, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("invalid position %q", s)
	}

	return (m*60 + sec) * 1000, nil
}

// pick resolves a search result index or returns arg as a uri.
func (c *Console) pick(arg string) (uri, name string, err error) {
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 1 || i > len(c.results) {
			return "", "", fmt.Errorf("no search result #%d", i)
		}
		t := c.results[i-1]
		return t.URI, t.Title(), nil
	}

	return arg, "", nil
}

func (c *Console) track(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: track <uri|#>", ErrUsage)
	}

	uri, name, err := c.pick(args[0])
	if err != nil {
		return err
	}

	return c.session.ChangeTrack(ctx, uri, name)
}

func (c *Console) queue(ctx context.Context, args []string) error {
	if c.library == nil {
		return ErrNoLibrary
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: queue <uri|#>", ErrUsage)
	}

	uri, _, err := c.pick(args[0])
	if err != nil {
		return err
	}

	if err := c.library.Queue(ctx, uri); err != nil {
		return fmt.Errorf("failed to queue: %w", err)
	}

	c.print(ui.PrintSuccess, "queued "+uri)

	return nil
}

// skip moves to the next queued track and tells the partner which one it is.
func (c *Console) skip(ctx context.Context) error {
	if c.library == nil {
		return ErrNoLibrary
	}

	if err := c.library.Next(ctx); err != nil {
		return fmt.Errorf("failed to skip: %w", err)
	}

	return c.session.ShareCurrentTrack(ctx)
}

func (c *Console) search(ctx context.Context, q string) error {
	if c.library == nil {
		return ErrNoLibrary
	}
	if q == "" {
		return fmt.Errorf("%w: search <query>", ErrUsage)
	}

	tracks, err := c.library.Search(ctx, q, searchLimit)
	if err != nil {
		return fmt.Errorf("failed to search: %w", err)
	}
	c.results = tracks

	rows := make([]ui.TrackRow, 0, len(tracks))
	for _, t := range tracks {
		rows = append(rows, ui.TrackRow{Title: t.Title(), URI: t.URI, DurationMs: t.DurationMs})
	}
	c.println(ui.TrackTable(rows))

	return nil
}

func (c *Console) status() {
	state := c.presence.Snapshot()
	player := c.player.Snapshot()

	partner := "absent"
	if state.PartnerPresent && state.Partner != nil {
		partner = state.Partner.DisplayName
		if partner == "" {
			partner = "present"
		}
	}

	track := player.TrackName
	if track == "" {
		track = player.TrackURI
	}

	playing := "paused"
	if player.IsPlaying {
		playing = "playing"
	}

	c.println(ui.StatusTable([][2]string{
		{"connection", string(state.Status)},
		{"room", c.session.RoomId()},
		{"partner", partner},
		{"latency", strconv.FormatInt(state.EstimatedLatencyMs, 10) + " ms"},
		{"track", track},
		{"position", ui.FormatPosition(c.player.Position()) + " " + playing},
	}))
}

func (c *Console) print(printer func(io.Writer, string), msg string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	printer(c.out, msg)
}

func (c *Console) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	fmt.Fprintln(c.out, s)
}
