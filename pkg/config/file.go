package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/battalert/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		LowThreshold:        ptr.To(DefaultLowThreshold),
		HighThreshold:       ptr.To(DefaultHighThreshold),
		PollIntervalSeconds: ptr.To(int(DefaultPollInterval / time.Second)),
		SoundEnabled:        ptr.To(DefaultSoundEnabled),
		AllowNonRootAccess:  ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk representation. Unset or zero values fall
// back to defaults.
type RawFileConfig struct {
	LowThreshold        *int  `json:"lowThreshold,omitempty" yaml:"lowThreshold,omitempty"`
	HighThreshold       *int  `json:"highThreshold,omitempty" yaml:"highThreshold,omitempty"`
	PollIntervalSeconds *int  `json:"pollIntervalSeconds,omitempty" yaml:"pollIntervalSeconds,omitempty"`
	SoundEnabled        *bool `json:"soundEnabled,omitempty" yaml:"soundEnabled,omitempty"`
	AllowNonRootAccess  *bool `json:"allowNonRootAccess,omitempty" yaml:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		LowThreshold:        ptr.To(c.LowThreshold()),
		HighThreshold:       ptr.To(c.HighThreshold()),
		PollIntervalSeconds: ptr.To(int(c.PollInterval() / time.Second)),
		SoundEnabled:        ptr.To(c.SoundEnabled()),
		AllowNonRootAccess:  ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// intOrDefault treats zero like unset, the same way an unset integer
// preference reads back as 0.
func intOrDefault(v, def *int) int {
	if v != nil && *v != 0 {
		return *v
	}
	return *def
}

func (f *File) LowThreshold() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOrDefault(f.c.LowThreshold, defaultFileConfig.LowThreshold)
}

func (f *File) HighThreshold() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOrDefault(f.c.HighThreshold, defaultFileConfig.HighThreshold)
}

func (f *File) PollInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	seconds := intOrDefault(f.c.PollIntervalSeconds, defaultFileConfig.PollIntervalSeconds)

	return time.Duration(seconds) * time.Second
}

func (f *File) SoundEnabled() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.SoundEnabled, *defaultFileConfig.SoundEnabled)
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

// Snapshot returns the current settings, clamped. It does not validate, so
// the consumer decides what to do with an invalid ordering.
func (f *File) Snapshot() Snapshot {
	return Snapshot{
		LowThreshold:  f.LowThreshold(),
		HighThreshold: f.HighThreshold(),
		PollInterval:  f.PollInterval(),
		SoundEnabled:  f.SoundEnabled(),
	}.Normalize()
}

func (f *File) SetThresholds(low, high int) error {
	if f.c == nil {
		panic("config is nil")
	}

	s := f.Snapshot()
	s.LowThreshold = low
	s.HighThreshold = high
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.LowThreshold = &s.LowThreshold
	f.c.HighThreshold = &s.HighThreshold

	return nil
}

func (f *File) SetPollInterval(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}

	seconds := int(ClampPollInterval(d) / time.Second)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PollIntervalSeconds = &seconds
}

func (f *File) SetSoundEnabled(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SoundEnabled = &b
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

// Path returns the file backing this config.
func (f *File) Path() string {
	return f.filepath
}

func (f *File) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(f.filepath))
	return ext == ".yaml" || ext == ".yml"
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	if f.isYAML() {
		enc := yaml.NewEncoder(fp)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	} else {
		enc := json.NewEncoder(fp)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"lowThreshold":       f.LowThreshold(),
		"highThreshold":      f.HighThreshold(),
		"pollInterval":       f.PollInterval().String(),
		"soundEnabled":       f.SoundEnabled(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
