package sound

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// EncodeWAV writes c as a 16-bit mono PCM WAV file.
func EncodeWAV(w io.WriteSeeker, c Cue) error {
	enc := wav.NewEncoder(w, c.SampleRate, bitDepth, 1, 1)

	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(math.Round(clampUnit(s) * math.MaxInt16))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalising wav: %w", err)
	}
	return nil
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
