// Package wav decodes the RIFF/WAVE files produced by the synthesis engine.
// Only uncompressed 16-bit PCM is supported, which is all the engine emits.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Info describes the format of a decoded file.
type Info struct {
	SampleRate int
	Channels   int
	Bits       int
}

var errTruncated = errors.New("wav: truncated file")

// Decode parses a RIFF/WAVE byte stream and returns its format and PCM
// samples. Chunks other than fmt and data are skipped.
func Decode(b []byte) (Info, []int16, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Info{}, nil, errors.New("wav: not a RIFF/WAVE stream")
	}

	var (
		info    Info
		data    []byte
		haveFmt bool
	)
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		if off+size > len(b) {
			return Info{}, nil, errTruncated
		}
		chunk := b[off : off+size]
		switch id {
		case "fmt ":
			if size < 16 {
				return Info{}, nil, errors.New("wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(chunk[0:2])
			if format != 1 {
				return Info{}, nil, fmt.Errorf("wav: unsupported format code %d, want PCM", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			info.Bits = int(binary.LittleEndian.Uint16(chunk[14:16]))
			haveFmt = true
		case "data":
			data = chunk
		}
		// Chunks are word-aligned.
		off += size + size%2
	}

	if !haveFmt {
		return Info{}, nil, errors.New("wav: missing fmt chunk")
	}
	if data == nil {
		return Info{}, nil, errors.New("wav: missing data chunk")
	}
	if info.Bits != 16 {
		return Info{}, nil, fmt.Errorf("wav: unsupported bit depth %d, want 16", info.Bits)
	}
	if info.Channels < 1 || info.SampleRate <= 0 {
		return Info{}, nil, errors.New("wav: invalid fmt chunk")
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i : 2*i+2]))
	}
	return info, samples, nil
}

// Duration computes the playback length of a decoded file.
func Duration(info Info, samples []int16) time.Duration {
	if info.SampleRate <= 0 || info.Channels <= 0 {
		return 0
	}
	frames := len(samples) / info.Channels
	return time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
}
