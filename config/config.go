// Package config holds the container configuration: the eviction, locking,
// expiration and memory-guard options, their defaults, YAML loading and
// range validation.
//
// In YAML the container options sit at the top level and the process-wide
// memoryGuard* options are nested under a memoryGuard key:
//
//	evictionStrategy: LRU
//	evictionMaxEntries: 10000
//	memoryGuard:
//	  memoryGuardEnabled: true
//	  memoryGuardThreshold: 80
//
// cmd/bench/guardcache.yaml is a complete sample.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/guardcache/monitor"
)

var (
	// ErrUnknownStrategy is wrapped by errors for eviction strategies outside
	// the supported set.
	ErrUnknownStrategy = errors.New("config: unknown eviction strategy")
	// ErrUnknownThreadPolicy is wrapped by errors for unsupported thread policies.
	ErrUnknownThreadPolicy = errors.New("config: unknown eviction thread policy")
)

// EvictionStrategy names a victim-selection policy.
type EvictionStrategy string

const (
	StrategyNone EvictionStrategy = "NONE"
	StrategyFIFO EvictionStrategy = "FIFO"
	StrategyLRU  EvictionStrategy = "LRU"
	StrategyLFU  EvictionStrategy = "LFU"
	Strategy2Q   EvictionStrategy = "2Q"
)

// Strategies lists the supported strategies.
func Strategies() []EvictionStrategy {
	return []EvictionStrategy{StrategyNone, StrategyFIFO, StrategyLRU, StrategyLFU, Strategy2Q}
}

// ParseEvictionStrategy normalizes s (case-insensitive). The empty string
// means NONE.
func ParseEvictionStrategy(s string) (EvictionStrategy, error) {
	v := EvictionStrategy(strings.ToUpper(strings.TrimSpace(s)))
	if v == "" {
		return StrategyNone, nil
	}
	for _, known := range Strategies() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// ThreadPolicy names where capacity eviction runs.
type ThreadPolicy string

const (
	ThreadPolicyPiggyback ThreadPolicy = "PIGGYBACK"
	ThreadPolicyThread    ThreadPolicy = "THREAD"
)

// ParseThreadPolicy normalizes s (case-insensitive). The empty string
// means PIGGYBACK.
func ParseThreadPolicy(s string) (ThreadPolicy, error) {
	switch v := ThreadPolicy(strings.ToUpper(strings.TrimSpace(s))); v {
	case "":
		return ThreadPolicyPiggyback, nil
	case ThreadPolicyPiggyback, ThreadPolicyThread:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownThreadPolicy, s)
	}
}

// Configuration is the per-container configuration.
type Configuration struct {
	Name string `yaml:"name"`

	EvictionStrategy     string `yaml:"evictionStrategy"`
	EvictionMaxEntries   int    `yaml:"evictionMaxEntries"`   // negative = unbounded
	EvictionThreadPolicy string `yaml:"evictionThreadPolicy"` // empty = PIGGYBACK

	ConcurrencyLevel int  `yaml:"concurrencyLevel"`
	UseLockStriping  bool `yaml:"useLockStriping"`

	ExpirationLifespan       time.Duration `yaml:"expirationLifespan"`
	ExpirationMaxIdle        time.Duration `yaml:"expirationMaxIdle"`
	ExpirationWakeUpInterval time.Duration `yaml:"expirationWakeUpInterval"`

	MemoryGuard MemoryGuardConfig `yaml:"memoryGuard"`
}

// MemoryGuardConfig is the process-wide memory guard configuration. It is
// read-only once the first container is built.
type MemoryGuardConfig struct {
	Enabled           bool               `yaml:"memoryGuardEnabled"`
	Threshold         float64            `yaml:"memoryGuardThreshold"`    // percent of committed memory
	PollInterval      int                `yaml:"memoryGuardPollInterval"` // milliseconds
	EvictionsPerCycle int                `yaml:"memoryGuardEvictionsPerCycle"`
	Source            monitor.SourceKind `yaml:"memoryGuardSource"`
}

// PollDuration returns PollInterval as a time.Duration.
func (m MemoryGuardConfig) PollDuration() time.Duration {
	return time.Duration(m.PollInterval) * time.Millisecond
}

// Default returns the configuration used for absent options.
func Default() Configuration {
	return Configuration{
		EvictionStrategy:     string(StrategyNone),
		EvictionMaxEntries:   -1,
		EvictionThreadPolicy: string(ThreadPolicyPiggyback),
		ConcurrencyLevel:     32,
		UseLockStriping:      true,
		MemoryGuard: MemoryGuardConfig{
			Enabled:           false,
			Threshold:         80,
			PollInterval:      200,
			EvictionsPerCycle: 250,
			Source:            monitor.SourceRuntime,
		},
	}
}

// Load reads a YAML configuration on top of Default. A missing file yields
// the defaults.
func Load(path string) (*Configuration, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("configuration file not found, using defaults", slog.String("path", path))
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, platformerrors.WithContext(
			platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "failed to parse config file"),
			"path", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks numeric ranges. Strategy and thread policy names are
// checked when a container is built.
func (c *Configuration) Validate() error {
	var problems []string

	if c.ConcurrencyLevel < 0 {
		problems = append(problems, fmt.Sprintf("concurrencyLevel must be >= 0, got %d", c.ConcurrencyLevel))
	}
	if c.ExpirationWakeUpInterval < 0 {
		problems = append(problems, "expirationWakeUpInterval must be >= 0")
	}

	if m := c.MemoryGuard; m.Enabled {
		if m.Threshold < 0 || m.Threshold > 100 {
			problems = append(problems, fmt.Sprintf("memoryGuardThreshold must be between 0 and 100, got %v", m.Threshold))
		}
		if m.PollInterval <= 0 {
			problems = append(problems, fmt.Sprintf("memoryGuardPollInterval must be > 0, got %d", m.PollInterval))
		}
		if m.EvictionsPerCycle <= 0 {
			problems = append(problems, fmt.Sprintf("memoryGuardEvictionsPerCycle must be > 0, got %d", m.EvictionsPerCycle))
		}
		switch m.Source {
		case "", monitor.SourceRuntime, monitor.SourceSystem:
		default:
			problems = append(problems, fmt.Sprintf("memoryGuardSource must be %q or %q, got %q", monitor.SourceRuntime, monitor.SourceSystem, m.Source))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return platformerrors.WithContext(
		platformerrors.New(platformerrors.CodeInvalidConfig, "invalid configuration: "+strings.Join(problems, "; ")),
		"problems", len(problems))
}
