package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical assimilation defaults file.
const DefaultConfigPath = "config/assimilation.defaults.json"

// ErrInvalidConfig is wrapped by every validation failure. Invalid values are
// rejected, never clamped.
var ErrInvalidConfig = errors.New("invalid configuration")

// Failure policies for windows whose correction step fails numerically.
const (
	PolicyContinue = "continue" // keep the unmodified forecast and carry on
	PolicyAbort    = "abort"    // stop the run
)

// Observable quantities that the observation operator may select.
const (
	QuantityCameraA      = "camera_a"
	QuantityCameraB      = "camera_b"
	QuantityBleedoutRate = "bleedout_rate"
)

// AssimilationConfig is the root configuration for a run. Every field is
// optional; the Get* methods supply defaults for anything left unset, so a
// partial JSON file is valid.
type AssimilationConfig struct {
	// Population and timing
	Agents       *int `json:"agents,omitempty"`
	Members      *int `json:"members,omitempty"`
	TicksPerHour *int `json:"ticks_per_hour,omitempty"`
	Windows      *int `json:"windows,omitempty"`
	WalkingSpeed *int `json:"walking_speed,omitempty"`

	// Release schedule (discretised normal over the 24h cycle)
	DailyReleases      *float64 `json:"daily_releases,omitempty"`
	ReleasePeakHour    *float64 `json:"release_peak_hour,omitempty"`
	ReleaseSpreadHours *float64 `json:"release_spread_hours,omitempty"`

	// Bleed-out rate prior and (optional) fixed ground truth
	PriorRateMean   *float64 `json:"prior_rate_mean,omitempty"`
	PriorRateStddev *float64 `json:"prior_rate_stddev,omitempty"`
	TrueRate        *float64 `json:"true_rate,omitempty"`

	// Filter
	ObservationNoiseVariance *float64 `json:"observation_noise_variance,omitempty"`
	Observed                 []string `json:"observed,omitempty"`
	RankTolerance            *float64 `json:"rank_tolerance,omitempty"`

	// Execution
	Parallel      *bool   `json:"parallel,omitempty"`
	Workers       *int    `json:"workers,omitempty"`
	ShuffleAgents *bool   `json:"shuffle_agents,omitempty"`
	Seed          *uint64 `json:"seed,omitempty"`
	FailurePolicy *string `json:"failure_policy,omitempty"`
	WindowBudget  *string `json:"window_budget,omitempty"` // duration string like "30s"
}

// EmptyAssimilationConfig returns a config with every field unset.
func EmptyAssimilationConfig() *AssimilationConfig {
	return &AssimilationConfig{}
}

// LoadAssimilationConfig loads and validates a config from a JSON file.
func LoadAssimilationConfig(path string) (*AssimilationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAssimilationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for tests
// and binaries started from inside the repository.
func MustLoadDefaultConfig() *AssimilationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAssimilationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks every set field. The returned error wraps ErrInvalidConfig.
func (c *AssimilationConfig) Validate() error {
	positive := []struct {
		name string
		v    *int
	}{
		{"agents", c.Agents},
		{"members", c.Members},
		{"ticks_per_hour", c.TicksPerHour},
		{"windows", c.Windows},
		{"walking_speed", c.WalkingSpeed},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, *p.v)
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfig, *c.Workers)
	}
	if c.DailyReleases != nil && *c.DailyReleases < 0 {
		return fmt.Errorf("%w: daily_releases must be non-negative, got %f", ErrInvalidConfig, *c.DailyReleases)
	}
	if c.ReleasePeakHour != nil && (*c.ReleasePeakHour < 0 || *c.ReleasePeakHour >= 24) {
		return fmt.Errorf("%w: release_peak_hour must be in [0,24), got %f", ErrInvalidConfig, *c.ReleasePeakHour)
	}
	if c.ReleaseSpreadHours != nil && *c.ReleaseSpreadHours <= 0 {
		return fmt.Errorf("%w: release_spread_hours must be positive, got %f", ErrInvalidConfig, *c.ReleaseSpreadHours)
	}
	if err := ValidateRate("prior_rate_mean", c.PriorRateMean); err != nil {
		return err
	}
	if err := ValidateRate("true_rate", c.TrueRate); err != nil {
		return err
	}
	if c.PriorRateStddev != nil && *c.PriorRateStddev < 0 {
		return fmt.Errorf("%w: prior_rate_stddev must be non-negative, got %f", ErrInvalidConfig, *c.PriorRateStddev)
	}
	if c.ObservationNoiseVariance != nil && *c.ObservationNoiseVariance < 0 {
		return fmt.Errorf("%w: observation_noise_variance must be non-negative, got %f", ErrInvalidConfig, *c.ObservationNoiseVariance)
	}
	if c.RankTolerance != nil && *c.RankTolerance <= 0 {
		return fmt.Errorf("%w: rank_tolerance must be positive, got %g", ErrInvalidConfig, *c.RankTolerance)
	}

	if c.Observed != nil {
		if len(c.Observed) != 2 {
			return fmt.Errorf("%w: observed must name exactly two quantities, got %d", ErrInvalidConfig, len(c.Observed))
		}
		if c.Observed[0] == c.Observed[1] {
			return fmt.Errorf("%w: observed quantities must differ, got %q twice", ErrInvalidConfig, c.Observed[0])
		}
		for _, q := range c.Observed {
			switch q {
			case QuantityCameraA, QuantityCameraB, QuantityBleedoutRate:
			default:
				return fmt.Errorf("%w: unknown observed quantity %q", ErrInvalidConfig, q)
			}
		}
	}

	if c.FailurePolicy != nil {
		switch *c.FailurePolicy {
		case PolicyContinue, PolicyAbort:
		default:
			return fmt.Errorf("%w: failure_policy must be %q or %q, got %q", ErrInvalidConfig, PolicyContinue, PolicyAbort, *c.FailurePolicy)
		}
	}

	if c.WindowBudget != nil && *c.WindowBudget != "" {
		d, err := time.ParseDuration(*c.WindowBudget)
		if err != nil {
			return fmt.Errorf("%w: invalid window_budget '%s': %v", ErrInvalidConfig, *c.WindowBudget, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: window_budget must be non-negative, got %s", ErrInvalidConfig, d)
		}
	}

	return nil
}

// ValidateRate reports whether a probability lies in [0,1]. A nil value is
// valid (unset).
func ValidateRate(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if !(*v >= 0 && *v <= 1) {
		return fmt.Errorf("%w: %s must be between 0 and 1, got %v", ErrInvalidConfig, name, *v)
	}
	return nil
}

// GetAgents returns the agents value or the default.
func (c *AssimilationConfig) GetAgents() int {
	if c.Agents == nil {
		return 600
	}
	return *c.Agents
}

// GetMembers returns the members value or the default.
func (c *AssimilationConfig) GetMembers() int {
	if c.Members == nil {
		return 30
	}
	return *c.Members
}

// GetTicksPerHour returns the ticks_per_hour value or the default.
func (c *AssimilationConfig) GetTicksPerHour() int {
	if c.TicksPerHour == nil {
		return 60
	}
	return *c.TicksPerHour
}

// GetWindows returns the windows value or the default.
func (c *AssimilationConfig) GetWindows() int {
	if c.Windows == nil {
		return 120
	}
	return *c.Windows
}

// GetWalkingSpeed returns the walking_speed value or the default.
func (c *AssimilationConfig) GetWalkingSpeed() int {
	if c.WalkingSpeed == nil {
		return 1
	}
	return *c.WalkingSpeed
}

// GetDailyReleases returns the daily_releases value or the default.
func (c *AssimilationConfig) GetDailyReleases() float64 {
	if c.DailyReleases == nil {
		return 8000
	}
	return *c.DailyReleases
}

// GetReleasePeakHour returns the release_peak_hour value or the default.
func (c *AssimilationConfig) GetReleasePeakHour() float64 {
	if c.ReleasePeakHour == nil {
		return 12
	}
	return *c.ReleasePeakHour
}

// GetReleaseSpreadHours returns the release_spread_hours value or the default.
func (c *AssimilationConfig) GetReleaseSpreadHours() float64 {
	if c.ReleaseSpreadHours == nil {
		return 6
	}
	return *c.ReleaseSpreadHours
}

// GetPriorRateMean returns the prior_rate_mean value or the default.
func (c *AssimilationConfig) GetPriorRateMean() float64 {
	if c.PriorRateMean == nil {
		return 0.5
	}
	return *c.PriorRateMean
}

// GetPriorRateStddev returns the prior_rate_stddev value or the default.
func (c *AssimilationConfig) GetPriorRateStddev() float64 {
	if c.PriorRateStddev == nil {
		return 0.1
	}
	return *c.PriorRateStddev
}

// GetTrueRate returns the fixed ground-truth rate and whether one was set.
// When unset the pipeline draws the hidden rate from the prior.
func (c *AssimilationConfig) GetTrueRate() (float64, bool) {
	if c.TrueRate == nil {
		return 0, false
	}
	return *c.TrueRate, true
}

// GetObservationNoiseVariance returns the observation_noise_variance value or the default (15²).
func (c *AssimilationConfig) GetObservationNoiseVariance() float64 {
	if c.ObservationNoiseVariance == nil {
		return 225
	}
	return *c.ObservationNoiseVariance
}

// GetObserved returns the two observed quantity names or the default pair of
// camera counts.
func (c *AssimilationConfig) GetObserved() []string {
	if c.Observed == nil {
		return []string{QuantityCameraA, QuantityCameraB}
	}
	out := make([]string, len(c.Observed))
	copy(out, c.Observed)
	return out
}

// GetRankTolerance returns the rank_tolerance value or the default.
func (c *AssimilationConfig) GetRankTolerance() float64 {
	if c.RankTolerance == nil {
		return 1e-12
	}
	return *c.RankTolerance
}

// GetParallel returns the parallel value or the default.
func (c *AssimilationConfig) GetParallel() bool {
	if c.Parallel == nil {
		return true
	}
	return *c.Parallel
}

// GetWorkers returns the workers value or the default. Zero means one worker
// per CPU.
func (c *AssimilationConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetShuffleAgents returns the shuffle_agents value or the default.
func (c *AssimilationConfig) GetShuffleAgents() bool {
	if c.ShuffleAgents == nil {
		return true
	}
	return *c.ShuffleAgents
}

// GetSeed returns the run seed and whether one was fixed. An unset seed means
// every run is different.
func (c *AssimilationConfig) GetSeed() (uint64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetFailurePolicy returns the failure_policy value or the default.
func (c *AssimilationConfig) GetFailurePolicy() string {
	if c.FailurePolicy == nil {
		return PolicyContinue
	}
	return *c.FailurePolicy
}

// GetWindowBudget parses and returns the WindowBudget. Zero means no budget.
func (c *AssimilationConfig) GetWindowBudget() time.Duration {
	if c.WindowBudget == nil || *c.WindowBudget == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.WindowBudget)
	if err != nil {
		return 0
	}
	return d
}
