package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/swiftlybot/yomiage/internal/wav"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	sampleRate  = 48000
	channels    = 2
	frameSizeMs = 20
	// frameSize is the number of samples per channel per 20 ms frame.
	frameSize = sampleRate * frameSizeMs / 1000 // 960
	// maxOpusBytes bounds one encoded packet.
	maxOpusBytes = 4000
)

var errDisconnected = errors.New("voice: connection closed")

// connection is the production [Handle]. One playback runs at a time; Play
// holds the play mutex for its full duration.
type connection struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string

	playMu  sync.Mutex
	playing atomic.Bool

	stopMu sync.Mutex
	stop   chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// Compile-time interface assertion.
var _ Handle = (*connection)(nil)

func newConnection(vc *discordgo.VoiceConnection, guildID, channelID string) (*connection, error) {
	return &connection{
		vc:        vc,
		guildID:   guildID,
		channelID: channelID,
		done:      make(chan struct{}),
	}, nil
}

func (c *connection) GuildID() string   { return c.guildID }
func (c *connection) ChannelID() string { return c.channelID }

func (c *connection) IsPlaying() bool { return c.playing.Load() }

// Stop aborts the in-flight Play, if any. Safe to call concurrently and when
// nothing is playing.
func (c *connection) Stop() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.stop != nil {
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
	}
}

// Play decodes a WAV file, converts it to gateway framing, and streams it
// until done, stopped, or cancelled. A stopped playback is not an error.
func (c *connection) Play(ctx context.Context, wavPath string) error {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return fmt.Errorf("voice: read %q: %w", wavPath, err)
	}
	info, samples, err := wav.Decode(data)
	if err != nil {
		return fmt.Errorf("voice: decode %q: %w", wavPath, err)
	}
	frames := packetize(info, samples)
	if len(frames) == 0 {
		return nil
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()

	c.stopMu.Lock()
	c.stop = make(chan struct{})
	stop := c.stop
	c.stopMu.Unlock()

	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("voice: create opus encoder: %w", err)
	}

	c.playing.Store(true)
	defer c.playing.Store(false)

	if err := c.vc.Speaking(true); err != nil {
		return fmt.Errorf("voice: set speaking: %w", err)
	}
	defer c.vc.Speaking(false)

	for _, frame := range frames {
		packet, err := enc.Encode(frame, frameSize, maxOpusBytes)
		if err != nil {
			return fmt.Errorf("voice: opus encode: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("voice: play: %w", ctx.Err())
		case <-stop:
			return nil
		case <-c.done:
			return errDisconnected
		case c.vc.OpusSend <- packet:
		case <-time.After(time.Second):
			return errors.New("voice: send stalled, dropping playback")
		}
	}
	return nil
}

// Disconnect tears the voice connection down. Safe to call more than once.
func (c *connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.Stop()
		err = c.vc.Disconnect()
	})
	return err
}
