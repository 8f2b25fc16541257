package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ModuleConfig is the per-provider slice of the scoring configuration.
type ModuleConfig struct {
	Weight    float64 `yaml:"weight" json:"weight"`
	Critical  bool    `yaml:"critical" json:"critical"`
	TimeoutMS int     `yaml:"timeout_ms" json:"timeout_ms"`
	Enabled   bool    `yaml:"enabled" json:"enabled"`
}

// Thresholds partition the score range [0,100] into three closed bands.
type Thresholds struct {
	SafeMax       int `yaml:"safe_max" json:"safe_max"`
	SuspiciousMin int `yaml:"suspicious_min" json:"suspicious_min"`
	SuspiciousMax int `yaml:"suspicious_max" json:"suspicious_max"`
	MaliciousMin  int `yaml:"malicious_min" json:"malicious_min"`
}

// Confidence holds the minimum required confidence and the penalties
// applied per missing module.
type Confidence struct {
	MinimumRequired    float64 `yaml:"minimum_required" json:"minimum_required"`
	CriticalPenalty    float64 `yaml:"critical_penalty" json:"critical_penalty"`
	NonCriticalPenalty float64 `yaml:"non_critical_penalty" json:"non_critical_penalty"`
}

// Config drives the scoring engine and the orchestrator's per-module
// deadlines.
type Config struct {
	Modules          map[string]ModuleConfig `yaml:"modules" json:"modules"`
	Thresholds       Thresholds              `yaml:"thresholds" json:"thresholds"`
	Confidence       Confidence              `yaml:"confidence" json:"confidence"`
	DefaultTimeoutMS int                     `yaml:"default_timeout_ms" json:"default_timeout_ms"`
}

// Default returns the built-in configuration used when no scoring config
// can be loaded. Weights sum to 1.0 across the three built-in providers.
func Default() Config {
	return Config{
		Modules: map[string]ModuleConfig{
			"static_analysis": {Weight: 0.35, Critical: true, TimeoutMS: 5000, Enabled: true},
			"threat_intel":    {Weight: 0.40, Critical: true, TimeoutMS: 5000, Enabled: true},
			"behavioral":      {Weight: 0.25, Critical: false, TimeoutMS: 10000, Enabled: true},
		},
		Thresholds: Thresholds{
			SafeMax:       29,
			SuspiciousMin: 30,
			SuspiciousMax: 69,
			MaliciousMin:  70,
		},
		Confidence: Confidence{
			MinimumRequired:    0.5,
			CriticalPenalty:    0.2,
			NonCriticalPenalty: 0.05,
		},
		DefaultTimeoutMS: 5000,
	}
}

// Timeout returns the deadline for a named module, falling back to the
// global default when the module has none configured.
func (c Config) Timeout(name string) time.Duration {
	if mc, ok := c.Modules[name]; ok && mc.TimeoutMS > 0 {
		return time.Duration(mc.TimeoutMS) * time.Millisecond
	}
	if c.DefaultTimeoutMS > 0 {
		return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
	}
	return 5 * time.Second
}

// EnabledWeight sums the weights of all enabled modules.
func (c Config) EnabledWeight() float64 {
	var total float64
	for _, mc := range c.Modules {
		if mc.Enabled {
			total += mc.Weight
		}
	}
	return total
}

// Validate checks band contiguity eagerly at load time. Malformed bands are
// hard errors (aggregated); a weight sum away from 1.0 is only reported as
// a warning to preserve permissive configs.
func (c Config) Validate() (warnings []string, err error) {
	var result *multierror.Error

	t := c.Thresholds
	if t.SafeMax < 0 {
		result = multierror.Append(result, fmt.Errorf("thresholds: safe_max must be >= 0, got %d", t.SafeMax))
	}
	if t.SuspiciousMin != t.SafeMax+1 {
		result = multierror.Append(result, fmt.Errorf("thresholds: suspicious_min must be safe_max+1 (%d), got %d", t.SafeMax+1, t.SuspiciousMin))
	}
	if t.MaliciousMin != t.SuspiciousMax+1 {
		result = multierror.Append(result, fmt.Errorf("thresholds: malicious_min must be suspicious_max+1 (%d), got %d", t.SuspiciousMax+1, t.MaliciousMin))
	}
	if t.MaliciousMin > 100 {
		result = multierror.Append(result, fmt.Errorf("thresholds: malicious_min must be <= 100, got %d", t.MaliciousMin))
	}

	for name, mc := range c.Modules {
		if mc.Weight < 0 {
			result = multierror.Append(result, fmt.Errorf("module %s: weight must be >= 0, got %v", name, mc.Weight))
		}
	}

	cf := c.Confidence
	if cf.MinimumRequired < 0 || cf.MinimumRequired > 1 {
		result = multierror.Append(result, fmt.Errorf("confidence: minimum_required must be in [0,1], got %v", cf.MinimumRequired))
	}

	if w := c.EnabledWeight(); math.Abs(w-1.0) > 1e-9 && w > 0 {
		warnings = append(warnings, fmt.Sprintf("enabled module weights sum to %.3f, not 1.0; confidence will scale accordingly", w))
	}

	return warnings, result.ErrorOrNil()
}
