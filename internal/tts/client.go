// Package tts is the client for the VOICEVOX-compatible synthesis engines.
// It load-balances over a mutable pool of engine URLs, retries transient
// failures, and fails over across engines before giving up.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/swiftlybot/yomiage/internal/wav"
)

// ErrEngineUnavailable reports that every engine exhausted its attempts.
var ErrEngineUnavailable = errors.New("tts: no engine available")

// TmpDir is where synthesized files are placed, relative to the working
// directory.
const TmpDir = "tmp"

// Result is a successful synthesis.
type Result struct {
	EngineURL string
	WAV       []byte
	Duration  time.Duration
}

// Config carries the dependencies for [NewClient].
type Config struct {
	// Engines returns the current engine base URLs. It is called on every
	// synthesis so operators can change the pool without a restart.
	Engines func() []string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	Logger *slog.Logger

	// AttemptsPerEngine defaults to 3.
	AttemptsPerEngine int

	// RetryDelay between attempts on the same engine. Defaults to 500ms.
	RetryDelay time.Duration

	// RecordRate, if set, receives processing-seconds per synthesized
	// minute after each successful call.
	RecordRate func(secondsPerMinute float64)
}

// Client performs synthesis calls. Safe for concurrent use.
type Client struct {
	engines    func() []string
	httpc      *http.Client
	log        *slog.Logger
	attempts   int
	retryDelay time.Duration
	recordRate func(float64)
}

// NewClient creates a Client from cfg. cfg.Engines must be non-nil.
func NewClient(cfg Config) *Client {
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	attempts := cfg.AttemptsPerEngine
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Client{
		engines:    cfg.Engines,
		httpc:      httpc,
		log:        log,
		attempts:   attempts,
		retryDelay: delay,
		recordRate: cfg.RecordRate,
	}
}

// Synthesize converts text to a WAV using the given speaker. speed scales the
// engine's speaking rate; pass 1.0 for the default. Engines are tried in
// random order, each up to the configured attempt count, before the call
// fails with [ErrEngineUnavailable].
func (c *Client) Synthesize(ctx context.Context, text string, speakerID int, speed float64) (*Result, error) {
	engines := c.engines()
	if len(engines) == 0 {
		return nil, fmt.Errorf("%w: engine pool is empty", ErrEngineUnavailable)
	}

	start := time.Now()
	var lastErr error
	for _, i := range rand.Perm(len(engines)) {
		engine := engines[i]
		wavBytes, err := c.synthesizeOn(ctx, engine, text, speakerID, speed)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("tts: synthesize: %w", ctx.Err())
			}
			c.log.Warn("engine failed, advancing to next", "engine", engine, "error", err)
			lastErr = err
			continue
		}

		res := &Result{EngineURL: engine, WAV: wavBytes}
		if info, samples, derr := wav.Decode(wavBytes); derr == nil {
			res.Duration = wav.Duration(info, samples)
		} else {
			c.log.Warn("synthesized wav not parseable, duration unknown", "engine", engine, "error", derr)
		}
		c.publishRate(time.Since(start), res.Duration)
		return res, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, lastErr)
}

// publishRate reports how many processing seconds one synthesized minute
// costs. Metric failures never fail the call.
func (c *Client) publishRate(elapsed, duration time.Duration) {
	if c.recordRate == nil || duration <= 0 {
		return
	}
	c.recordRate(elapsed.Seconds() * 60 / duration.Seconds())
}

// synthesizeOn runs the attempt loop against a single engine.
func (c *Client) synthesizeOn(ctx context.Context, engine, text string, speakerID int, speed float64) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		wavBytes, retryable, err := c.exchange(ctx, engine, text, speakerID, speed)
		if err == nil {
			return wavBytes, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

// exchange performs the two-step audio_query + synthesis call. The bool
// return reports whether the failure is worth retrying: transport errors and
// 5xx responses are, 4xx responses are not.
func (c *Client) exchange(ctx context.Context, engine, text string, speakerID int, speed float64) ([]byte, bool, error) {
	speaker := strconv.Itoa(speakerID)

	q := url.Values{"text": {text}, "speaker": {speaker}}
	queryBody, retryable, err := c.post(ctx, engine+"/audio_query?"+q.Encode(), "", nil)
	if err != nil {
		return nil, retryable, fmt.Errorf("audio_query: %w", err)
	}

	var audioQuery map[string]any
	if err := json.Unmarshal(queryBody, &audioQuery); err != nil {
		return nil, true, fmt.Errorf("audio_query: decode: %w", err)
	}
	if speed > 0 && speed != 1.0 {
		audioQuery["speedScale"] = speed
	}
	payload, err := json.Marshal(audioQuery)
	if err != nil {
		return nil, false, fmt.Errorf("audio_query: re-encode: %w", err)
	}

	sq := url.Values{"speaker": {speaker}}
	wavBytes, retryable, err := c.post(ctx, engine+"/synthesis?"+sq.Encode(), "application/json", payload)
	if err != nil {
		return nil, retryable, fmt.Errorf("synthesis: %w", err)
	}
	return wavBytes, false, nil
}

func (c *Client) post(ctx context.Context, rawURL, contentType string, body []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode >= 500, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return data, false, nil
}

// SynthesizeToFile synthesizes text and writes the WAV under [TmpDir],
// creating the directory if absent. name is a caller suggestion; only its
// base is kept, so the returned path is the authoritative location.
func (c *Client) SynthesizeToFile(ctx context.Context, text string, speakerID int, speed float64, name string) (string, error) {
	res, err := c.Synthesize(ctx, text, speakerID, speed)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(TmpDir, 0o755); err != nil {
		return "", fmt.Errorf("tts: create tmp dir: %w", err)
	}
	path := filepath.Join(TmpDir, filepath.Base(name))
	if err := os.WriteFile(path, res.WAV, 0o644); err != nil {
		return "", fmt.Errorf("tts: write %q: %w", path, err)
	}
	return path, nil
}

// TempWAVName returns a collision-free filename for a synthesis of the given
// purpose, e.g. "queue" or "sample".
func TempWAVName(purpose string) string {
	return fmt.Sprintf("tmp_%s_%s.wav", uuid.NewString(), purpose)
}

// Speaker is one entry of an engine's speaker roster.
type Speaker struct {
	Name   string  `json:"name"`
	UUID   string  `json:"speaker_uuid"`
	Styles []Style `json:"styles"`
}

// Style is one selectable voice of a speaker. ID is the value passed as the
// speaker parameter on synthesis.
type Style struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// ListSpeakers fetches the speaker roster from the first reachable engine.
func (c *Client) ListSpeakers(ctx context.Context) ([]Speaker, error) {
	engines := c.engines()
	if len(engines) == 0 {
		return nil, fmt.Errorf("%w: engine pool is empty", ErrEngineUnavailable)
	}
	var lastErr error
	for _, i := range rand.Perm(len(engines)) {
		speakers, err := c.fetchSpeakers(ctx, engines[i])
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("tts: list speakers: %w", ctx.Err())
			}
			lastErr = err
			continue
		}
		return speakers, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, lastErr)
}

func (c *Client) fetchSpeakers(ctx context.Context, engine string) ([]Speaker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, engine+"/speakers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, engine)
	}
	var speakers []Speaker
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("decode speakers from %s: %w", engine, err)
	}
	return speakers, nil
}
