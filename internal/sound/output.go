package sound

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// State is the condition of an audio output.
type State int

const (
	Running State = iota
	Suspended
	Closed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	default:
		return "closed"
	}
}

// Output plays cues on some audio device.
type Output interface {
	State() State
	Resume(ctx context.Context) error
	Play(ctx context.Context, c Cue) error
}

// ErrNoPlayer is returned when no command-line player can be found.
var ErrNoPlayer = errors.New("sound: no audio player found")

// playTimeout bounds a single player run. Cues last well under a second.
const playTimeout = 5 * time.Second

// players are tried in order when no player is configured.
var players = []string{"paplay", "aplay", "afplay"}

// PlayerOutput plays cues by writing them to a temporary WAV file and
// running a command-line player on it. A failed playback suspends the
// output until Resume finds a player again.
type PlayerOutput struct {
	want    string
	timeout time.Duration

	mu    sync.Mutex
	path  string
	state State
}

// NewPlayerOutput looks up player, or the first available default player
// when player is empty. The output is Closed when none is found.
func NewPlayerOutput(player string) *PlayerOutput {
	o := &PlayerOutput{want: player, timeout: playTimeout}
	if path, err := o.lookup(); err == nil {
		o.path = path
		o.state = Running
	} else {
		o.state = Closed
	}
	return o
}

func (o *PlayerOutput) lookup() (string, error) {
	candidates := players
	if o.want != "" {
		candidates = []string{o.want}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", ErrNoPlayer
}

// State implements Output.
func (o *PlayerOutput) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Resume implements Output.
func (o *PlayerOutput) Resume(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == Running {
		return nil
	}
	path, err := o.lookup()
	if err != nil {
		return err
	}
	o.path = path
	o.state = Running
	return nil
}

// Play implements Output.
func (o *PlayerOutput) Play(ctx context.Context, c Cue) error {
	o.mu.Lock()
	path, state := o.path, o.state
	o.mu.Unlock()

	if state != Running {
		return fmt.Errorf("sound: output %s", state)
	}

	f, err := os.CreateTemp("", "paddledesk-cue-*.wav")
	if err != nil {
		return fmt.Errorf("creating cue file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := EncodeWAV(f, c); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing cue file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, f.Name())
	cmd.WaitDelay = time.Second
	if out, err := cmd.CombinedOutput(); err != nil {
		o.mu.Lock()
		o.state = Suspended
		o.mu.Unlock()
		return fmt.Errorf("running %s: %w: %s", path, err, out)
	}
	return nil
}
