package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleRate is the fixed output rate the APU accumulates samples at (see
// apu.go's flushMix), matching spec.md's 44100 Hz mixer requirement.
const SampleRate = 44100

// SaveWAV writes an interleaved stereo int16 sample stream (as returned by
// Provider.GetSamples) to a 16-bit PCM WAV file at path.
func SaveWAV(samples []int16, path string) error {
	if len(samples)%2 != 0 {
		return fmt.Errorf("jeebie/audio: sample slice length %d is not a multiple of 2 (stereo)", len(samples))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jeebie/audio: create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SampleRate, 16, 2, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("jeebie/audio: write %s: %w", path, err)
	}

	return enc.Close()
}
