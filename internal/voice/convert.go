package voice

import "github.com/swiftlybot/yomiage/internal/wav"

// packetize converts decoded WAV audio into 20 ms gateway frames: resample to
// 48 kHz, widen mono to stereo, and cut into frame-sized chunks with the last
// one zero-padded.
func packetize(info wav.Info, samples []int16) [][]int16 {
	if len(samples) == 0 {
		return nil
	}
	pcm := samples
	if info.SampleRate != sampleRate {
		if info.Channels == 1 {
			pcm = resampleMono(pcm, info.SampleRate, sampleRate)
		} else {
			pcm = resampleStereo(pcm, info.SampleRate, sampleRate)
		}
	}
	if info.Channels == 1 {
		pcm = monoToStereo(pcm)
	}

	const frameLen = frameSize * channels
	frames := make([][]int16, 0, (len(pcm)+frameLen-1)/frameLen)
	for off := 0; off < len(pcm); off += frameLen {
		end := off + frameLen
		if end <= len(pcm) {
			frames = append(frames, pcm[off:end])
			continue
		}
		last := make([]int16, frameLen)
		copy(last, pcm[off:])
		frames = append(frames, last)
	}
	return frames
}

// monoToStereo duplicates each sample into both channels.
func monoToStereo(pcm []int16) []int16 {
	out := make([]int16, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// resampleMono performs linear-interpolation resampling of mono PCM.
func resampleMono(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	dstSamples := int(int64(len(pcm)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}
	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		s0 := pcm[idx]
		s1 := s0
		if idx+1 < len(pcm) {
			s1 = pcm[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// resampleStereo resamples interleaved stereo by splitting the channels,
// resampling each, and re-interleaving.
func resampleStereo(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	frames := len(pcm) / 2
	left := make([]int16, frames)
	right := make([]int16, frames)
	for i := 0; i < frames; i++ {
		left[i] = pcm[2*i]
		right[i] = pcm[2*i+1]
	}
	left = resampleMono(left, srcRate, dstRate)
	right = resampleMono(right, srcRate, dstRate)
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := make([]int16, n*2)
	for i := 0; i < n; i++ {
		out[2*i] = left[i]
		out[2*i+1] = right[i]
	}
	return out
}
