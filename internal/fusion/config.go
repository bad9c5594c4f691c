package fusion

import "fmt"

// Config holds the fusion engine parameters.
type Config struct {
	// K is the number of candidates requested from each tier
	K int `yaml:"k"`

	// TopN truncates the fused list
	TopN int `yaml:"top_n"`

	// BetaBase is the temperature base for adaptive weighting.
	// beta = BetaBase * |s1 - s2| * 5
	BetaBase float64 `yaml:"beta_base"`

	// ThresholdLow triggers escalation when both tier peaks fall strictly below it
	ThresholdLow float64 `yaml:"threshold_low"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		K:            10,
		TopN:         10,
		BetaBase:     2.0,
		ThresholdLow: 0.75,
	}
}

// Validate checks that the configuration values are sensible
func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("K must be at least 1 (got %d)", c.K)
	}
	if c.TopN < 1 {
		return fmt.Errorf("TopN must be at least 1 (got %d)", c.TopN)
	}
	if c.BetaBase <= 0 {
		return fmt.Errorf("BetaBase must be positive (got %f)", c.BetaBase)
	}
	if c.ThresholdLow < 0.0 || c.ThresholdLow > 1.0 {
		return fmt.Errorf("ThresholdLow must be between 0.0 and 1.0 (got %f)", c.ThresholdLow)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("fusion.Config{K=%d, TopN=%d, BetaBase=%.2f, ThresholdLow=%.2f}",
		c.K, c.TopN, c.BetaBase, c.ThresholdLow)
}
