package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWAVWritesReadableFile(t *testing.T) {
	samples := make([]int16, 0, 2*SampleRate/100)
	for i := 0; i < SampleRate/100; i++ {
		samples = append(samples, int16(i%100), int16(-(i % 100)))
	}

	path := filepath.Join(t.TempDir(), "dump.wav")
	require.NoError(t, SaveWAV(samples, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(44)) // larger than a bare WAV header
}

func TestSaveWAVRejectsOddLength(t *testing.T) {
	err := SaveWAV([]int16{1, 2, 3}, filepath.Join(t.TempDir(), "bad.wav"))
	assert.Error(t, err)
}
