// Package voice joins guild voice channels and plays synthesized WAV files
// over them. It wraps the bwmarrin/discordgo voice transport and encodes
// playback audio to Opus at the 48 kHz stereo 20 ms framing the gateway
// expects.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
)

// ErrConnectClosed reports that the voice gateway rejected the session with
// close code 4006 (session no longer valid). Retrying the same join is
// pointless; the caller must give up and let a later event re-trigger it.
var ErrConnectClosed = errors.New("voice: session invalidated by gateway (4006)")

// Handle is one live voice-channel occupation.
type Handle interface {
	GuildID() string
	ChannelID() string

	// Play synthesized audio from a WAV file. Blocks until playback ends,
	// is stopped, or ctx is cancelled.
	Play(ctx context.Context, wavPath string) error

	// IsPlaying reports whether a Play call is currently sending audio.
	IsPlaying() bool

	// Stop aborts the current Play call, if any.
	Stop()

	Disconnect() error
}

// Platform joins voice channels. Implemented by [DiscordPlatform] in
// production and by fakes in tests.
type Platform interface {
	Join(ctx context.Context, guildID, channelID string) (Handle, error)
}

// Compile-time interface assertion.
var _ Platform = (*DiscordPlatform)(nil)

// DiscordPlatform implements [Platform] over an active *discordgo.Session
// owned by the bot layer. Safe for concurrent use.
type DiscordPlatform struct {
	session *discordgo.Session
}

// NewDiscordPlatform wraps the given gateway session.
func NewDiscordPlatform(session *discordgo.Session) *DiscordPlatform {
	return &DiscordPlatform{session: session}
}

// Join occupies a voice channel. The relay sends audio and never listens, so
// it joins unmuted and self-deafened. ctx bounds the connection setup; the
// returned handle lives until Disconnect.
func (p *DiscordPlatform) Join(ctx context.Context, guildID, channelID string) (Handle, error) {
	type joinResult struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan joinResult, 1)
	go func() {
		vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, true)
		ch <- joinResult{vc: vc, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("voice: join channel %q: %w", channelID, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			if isSessionInvalid(r.err) {
				return nil, fmt.Errorf("voice: join channel %q: %w", channelID, ErrConnectClosed)
			}
			return nil, fmt.Errorf("voice: join channel %q: %w", channelID, r.err)
		}
		conn, err := newConnection(r.vc, guildID, channelID)
		if err != nil {
			_ = r.vc.Disconnect()
			return nil, err
		}
		return conn, nil
	}
}

// isSessionInvalid detects voice gateway close code 4006. discordgo surfaces
// it as a websocket close error; older paths stringify it.
func isSessionInvalid(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == 4006
	}
	return strings.Contains(err.Error(), "4006")
}
