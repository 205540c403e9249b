// Package spotify is the boundary to the Spotify Web API player endpoints.
// Obtaining the access token is left to the caller.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sharetube/tandem/internal/playback"
)

const DefaultBaseURL = "https://api.spotify.com/v1"

var (
	ErrUnauthorized   = errors.New("access token rejected")
	ErrForbidden      = errors.New("action not allowed for this account")
	ErrNoActiveDevice = errors.New("no active device")
	ErrRateLimited    = errors.New("rate limited")
)

type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type Artist struct {
	Name string `json:"name"`
}

type Track struct {
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	DurationMs int64    `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
}

// Title is "artist - name" or just the name when no artist is listed.
func (t Track) Title() string {
	if len(t.Artists) == 0 {
		return t.Name
	}

	names := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		names = append(names, artist.Name)
	}

	return strings.Join(names, ", ") + " - " + t.Name
}

type playerResponse struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int64  `json:"progress_ms"`
	Item       *Track `json:"item"`
}

type searchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNoActiveDevice
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %ss", ErrRateLimited, resp.Header.Get("Retry-After"))
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// State returns the zero state when nothing is playing on any device.
func (c *Client) State(ctx context.Context) (playback.State, error) {
	var resp playerResponse
	if err := c.do(ctx, http.MethodGet, "/me/player", nil, nil, &resp); err != nil {
		return playback.State{}, err
	}

	state := playback.State{
		IsPlaying:  resp.IsPlaying,
		ProgressMs: resp.ProgressMs,
	}
	if resp.Item != nil {
		state.TrackURI = resp.Item.URI
		state.TrackName = resp.Item.Title()
		state.DurationMs = resp.Item.DurationMs
	}

	return state, nil
}

func (c *Client) Play(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/me/player/play", nil, nil, nil)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/me/player/pause", nil, nil, nil)
}

func (c *Client) Seek(ctx context.Context, positionMs int64) error {
	query := url.Values{"position_ms": {strconv.FormatInt(positionMs, 10)}}
	return c.do(ctx, http.MethodPut, "/me/player/seek", query, nil, nil)
}

func (c *Client) PlayTrack(ctx context.Context, uri string) error {
	body := map[string]any{"uris": []string{uri}, "position_ms": 0}
	return c.do(ctx, http.MethodPut, "/me/player/play", nil, body, nil)
}

func (c *Client) Queue(ctx context.Context, uri string) error {
	return c.do(ctx, http.MethodPost, "/me/player/queue", url.Values{"uri": {uri}}, nil, nil)
}

func (c *Client) Next(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/me/player/next", nil, nil, nil)
}

func (c *Client) Search(ctx context.Context, q string, limit int) ([]Track, error) {
	query := url.Values{
		"q":     {q},
		"type":  {"track"},
		"limit": {strconv.Itoa(limit)},
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/search", query, nil, &resp); err != nil {
		return nil, err
	}

	return resp.Tracks.Items, nil
}
