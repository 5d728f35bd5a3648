package sound

import (
	"math"
	"time"

	"github.com/nhle/paddledesk/internal/model"
)

// DefaultSampleRate is the sample rate of synthesised cues.
const DefaultSampleRate = 44100

// Cue is a mono PCM buffer with samples in [-1, 1].
type Cue struct {
	SampleRate int
	Samples    []float64
}

// Duration returns the playing time of c.
func (c Cue) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// waveform shapes one oscillator period.
type waveform int

const (
	sine waveform = iota
	triangle
	square
)

// tone is one segment of a cue: a frequency sweep under an
// attack/release envelope, followed by silence.
type tone struct {
	from, to float64 // Hz
	dur      time.Duration
	attack   time.Duration
	release  time.Duration
	gap      time.Duration
	gain     float64
	wave     waveform
}

// cues maps each priority to its pattern. Urgent is a sharp high double
// pulse, high a two-tone alert, medium a C-E-G arpeggio and low a soft
// single tone.
var cues = map[model.Priority][]tone{
	model.PriorityUrgent: {
		{from: 880, to: 1320, dur: 80 * time.Millisecond, attack: 2 * time.Millisecond, release: 20 * time.Millisecond, gap: 40 * time.Millisecond, gain: 1, wave: square},
		{from: 880, to: 1320, dur: 80 * time.Millisecond, attack: 2 * time.Millisecond, release: 20 * time.Millisecond, gain: 1, wave: square},
	},
	model.PriorityHigh: {
		{from: 660, to: 660, dur: 150 * time.Millisecond, attack: 5 * time.Millisecond, release: 30 * time.Millisecond, gap: 30 * time.Millisecond, gain: 0.8, wave: triangle},
		{from: 880, to: 880, dur: 150 * time.Millisecond, attack: 5 * time.Millisecond, release: 40 * time.Millisecond, gain: 0.8, wave: triangle},
	},
	model.PriorityMedium: {
		{from: 523.25, to: 523.25, dur: 120 * time.Millisecond, attack: 10 * time.Millisecond, release: 60 * time.Millisecond, gain: 0.6, wave: sine},
		{from: 659.25, to: 659.25, dur: 120 * time.Millisecond, attack: 10 * time.Millisecond, release: 60 * time.Millisecond, gain: 0.6, wave: sine},
		{from: 783.99, to: 783.99, dur: 200 * time.Millisecond, attack: 10 * time.Millisecond, release: 120 * time.Millisecond, gain: 0.6, wave: sine},
	},
	model.PriorityLow: {
		{from: 440, to: 440, dur: 250 * time.Millisecond, attack: 30 * time.Millisecond, release: 150 * time.Millisecond, gain: 0.4, wave: sine},
	},
}

// Synthesize renders the cue for p at the given volume. Unknown priorities
// fall back to the low cue.
func Synthesize(p model.Priority, volume float64, sampleRate int) Cue {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	volume = clamp01(volume)

	pattern, ok := cues[p]
	if !ok {
		pattern = cues[model.PriorityLow]
	}

	var samples []float64
	for _, t := range pattern {
		samples = t.render(samples, volume, sampleRate)
	}
	return Cue{SampleRate: sampleRate, Samples: samples}
}

func (t tone) render(out []float64, volume float64, rate int) []float64 {
	n := samplesFor(t.dur, rate)
	attack := samplesFor(t.attack, rate)
	release := samplesFor(t.release, rate)

	phase := 0.0
	for i := 0; i < n; i++ {
		// Linear sweep from t.from to t.to over the segment.
		f := t.from + (t.to-t.from)*float64(i)/float64(n)
		phase += 2 * math.Pi * f / float64(rate)

		env := 1.0
		switch {
		case attack > 0 && i < attack:
			env = float64(i) / float64(attack)
		case release > 0 && i >= n-release:
			env = float64(n-i) / float64(release)
		}

		out = append(out, t.wave.sample(phase)*env*t.gain*volume)
	}

	silence := samplesFor(t.gap, rate)
	for i := 0; i < silence; i++ {
		out = append(out, 0)
	}
	return out
}

func samplesFor(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

func (w waveform) sample(phase float64) float64 {
	switch w {
	case square:
		// Softened square; a hard edge clicks on small speakers.
		return math.Tanh(4 * math.Sin(phase))
	case triangle:
		return 2 / math.Pi * math.Asin(math.Sin(phase))
	default:
		return math.Sin(phase)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
