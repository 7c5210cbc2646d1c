package config

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"
)

const (
	// MinThreshold and MaxThreshold bound both thresholds after clamping.
	MinThreshold = 1
	MaxThreshold = 99

	// MinPollInterval is the floor for the poll interval. Shorter intervals are
	// clamped to it, not rejected.
	MinPollInterval = 30 * time.Second

	DefaultLowThreshold  = 20
	DefaultHighThreshold = 80
	DefaultPollInterval  = 60 * time.Second
	DefaultSoundEnabled  = true
)

// ErrInvalidConfig is returned when a snapshot cannot be used to monitor,
// e.g. the high threshold is not above the low threshold.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the read/write settings store used by the daemon.
type Config interface {
	Provider

	LowThreshold() int
	HighThreshold() int
	PollInterval() time.Duration
	SoundEnabled() bool
	AllowNonRootAccess() bool

	// SetThresholds validates and stores both thresholds at once, so the
	// low/high ordering is never observed half-applied.
	SetThresholds(low, high int) error
	SetPollInterval(time.Duration)
	SetSoundEnabled(bool)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

// Provider supplies immutable settings snapshots to the monitor.
type Provider interface {
	Snapshot() Snapshot
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() Snapshot

func (f ProviderFunc) Snapshot() Snapshot { return f() }

// Snapshot is an immutable copy of the alert settings taken for one use.
type Snapshot struct {
	LowThreshold  int           `json:"lowThreshold" validate:"min=1,max=99"`
	HighThreshold int           `json:"highThreshold" validate:"min=1,max=99,gtfield=LowThreshold"`
	PollInterval  time.Duration `json:"pollInterval" validate:"min=30s"`
	SoundEnabled  bool          `json:"soundEnabled"`
}

// DefaultSnapshot returns the settings used when nothing is configured.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		LowThreshold:  DefaultLowThreshold,
		HighThreshold: DefaultHighThreshold,
		PollInterval:  DefaultPollInterval,
		SoundEnabled:  DefaultSoundEnabled,
	}
}

// Normalize clamps thresholds to [MinThreshold, MaxThreshold] and the poll
// interval to MinPollInterval. It never fixes threshold ordering.
func (s Snapshot) Normalize() Snapshot {
	s.LowThreshold = clamp(s.LowThreshold, MinThreshold, MaxThreshold)
	s.HighThreshold = clamp(s.HighThreshold, MinThreshold, MaxThreshold)
	s.PollInterval = ClampPollInterval(s.PollInterval)
	return s
}

// Validate reports an ErrInvalidConfig if the snapshot breaks
// 1 <= low < high <= 99 or the interval is below the floor. Callers normally
// Normalize first, so in practice only the ordering can fail.
func (s Snapshot) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "gtfield" {
			return pkgerrors.Wrapf(ErrInvalidConfig, "high threshold %d must be greater than low threshold %d", s.HighThreshold, s.LowThreshold)
		}
		return pkgerrors.Wrapf(ErrInvalidConfig, "%s failed on %s (value %v)", fe.Field(), fe.Tag(), fe.Value())
	}

	return pkgerrors.Wrap(ErrInvalidConfig, err.Error())
}

// ClampPollInterval raises d to MinPollInterval when it is shorter.
func ClampPollInterval(d time.Duration) time.Duration {
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}

var validate = validator.New()

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
