package config

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gopkg.in/yaml.v3"
)

// Range is a closed interval of durations. A zero Range means "unbounded"
// where a hold time is expected.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// UnmarshalYAML accepts either {min, max}, a single duration, or "forever".
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Value == "forever" {
			*r = Range{}
			return nil
		}
		d, err := time.ParseDuration(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = Range{Min: d, Max: d}
		return nil
	}
	type plain Range
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Range(p)
	return nil
}

func (r Range) IsZero() bool {
	return r.Min == 0 && r.Max == 0
}

// Pick draws uniformly from [Min, Max].
func (r Range) Pick() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int64N(int64(r.Max-r.Min)+1))
}

func (r Range) String() string {
	if r.Min == r.Max {
		return r.Min.String()
	}
	return r.Min.String() + "-" + r.Max.String()
}

func (r Range) validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("negative bound in %s", r)
	}
	if r.Min > r.Max {
		return fmt.Errorf("min %s is greater than max %s", r.Min, r.Max)
	}
	return nil
}
