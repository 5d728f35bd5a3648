// Package sound plays short synthesised cues whose shape encodes the
// priority of an alert. It never fails: when no audio output is available
// the cue is dropped and logged.
package sound

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"golang.org/x/time/rate"

	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/model"
)

const (
	// DefaultMinGap is the minimum spacing between two cues.
	DefaultMinGap = 750 * time.Millisecond

	DefaultVolume = 0.7
)

// Options tunes a Service. Zero values select the defaults; mute with
// Disabled or SetVolume(0).
type Options struct {
	Volume     float64
	Disabled   bool
	MinGap     time.Duration
	SampleRate int
	Clock      clock.Clock
	Logger     *log.Logger
}

// Service is the application's single sound player.
type Service struct {
	out        Output
	sampleRate int
	clk        clock.Clock
	log        *log.Logger
	limiter    *rate.Limiter

	mu      sync.Mutex
	volume  float64
	enabled bool

	// Played counts cues handed to the output.
	played int
}

// New creates a Service on out. A nil out makes every Play a no-op.
func New(out Output, opts Options) *Service {
	s := &Service{
		out:        out,
		sampleRate: opts.SampleRate,
		clk:        opts.Clock,
		log:        opts.Logger,
		volume:     clamp01(opts.Volume),
		enabled:    !opts.Disabled,
	}
	if opts.Volume <= 0 {
		s.volume = DefaultVolume
	}
	if s.sampleRate <= 0 {
		s.sampleRate = DefaultSampleRate
	}
	if s.clk == nil {
		s.clk = clock.New()
	}
	if s.log == nil {
		s.log = logging.GetLogger(logging.Sound)
	}
	gap := opts.MinGap
	if gap <= 0 {
		gap = DefaultMinGap
	}
	s.limiter = rate.NewLimiter(rate.Every(gap), 1)
	return s
}

// IsAvailable reports whether an output exists and is not closed.
func (s *Service) IsAvailable() bool {
	return s.out != nil && s.out.State() != Closed
}

// SetVolume sets the volume, clamped to [0, 1].
func (s *Service) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = clamp01(v)
	s.mu.Unlock()
}

// Volume returns the current volume.
func (s *Service) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetEnabled turns cues on or off.
func (s *Service) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
}

// Enabled reports whether cues are on.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Played returns the number of cues handed to the output so far.
func (s *Service) Played() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

// Play renders and plays the cue for p. It reports whether the cue was
// handed to the output.
func (s *Service) Play(ctx context.Context, p model.Priority) bool {
	s.mu.Lock()
	enabled, volume := s.enabled, s.volume
	s.mu.Unlock()

	if !enabled || volume == 0 {
		return false
	}
	if !s.IsAvailable() {
		s.log.Printf("[DEBUG] No audio output, dropping %s cue\n", p)
		return false
	}
	if !s.limiter.AllowN(s.clk.Now(), 1) {
		s.log.Printf("[DEBUG] Cue %s dropped, previous cue too recent\n", p)
		return false
	}

	if s.out.State() == Suspended {
		if err := s.out.Resume(ctx); err != nil {
			s.log.Printf("[DEBUG] Cannot resume audio output, dropping %s cue: %s\n", p, err)
			return false
		}
	}

	cue := Synthesize(p, volume, s.sampleRate)
	if err := s.out.Play(ctx, cue); err != nil {
		s.log.Printf("[WARN] Cannot play %s cue: %s\n", p, err)
		return false
	}

	s.mu.Lock()
	s.played++
	s.mu.Unlock()
	return true
}
