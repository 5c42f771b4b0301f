package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"showdown-strategist/strategy"
)

// Strategy is the YAML strategy file: which evaluators to run, their
// weights and the engine thresholds.
type Strategy struct {
	SwitchThreshold float64 `yaml:"switch_threshold"`
	PowerUp         struct {
		MinOpponentHP float64 `yaml:"min_opponent_hp"`
		MinSelfHP     float64 `yaml:"min_self_hp"`
	} `yaml:"power_up"`
	Evaluators []strategy.WeightedName `yaml:"evaluators"`
}

func DefaultStrategy() *Strategy {
	opts := strategy.DefaultOptions()
	s := &Strategy{SwitchThreshold: opts.SwitchThreshold}
	s.PowerUp.MinOpponentHP = opts.PowerUpOpponentHP
	s.PowerUp.MinSelfHP = opts.PowerUpSelfHP
	return s
}

// LoadStrategy reads a strategy file. A missing file, or a file without an
// evaluators key, gets the default line-up; an explicit empty list runs
// with no evaluators.
func LoadStrategy(path string) (*Strategy, error) {
	s := DefaultStrategy()
	if path == "" {
		s.Evaluators = strategy.DefaultWeights
		return s, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.Evaluators = strategy.DefaultWeights
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("failed to parse strategy file %s: %w", path, err)
	}
	if s.Evaluators == nil {
		s.Evaluators = strategy.DefaultWeights
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("strategy file %s: %w", path, err)
	}
	return s, nil
}

func (s *Strategy) Validate() error {
	seen := make(map[string]struct{}, len(s.Evaluators))
	for _, e := range s.Evaluators {
		if _, ok := strategy.Builtins[e.Name]; !ok {
			return fmt.Errorf("%w: %q", strategy.ErrUnknownEvaluator, e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("%w: %q", strategy.ErrDuplicateEvaluator, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	switch {
	case s.PowerUp.MinOpponentHP < 0 || s.PowerUp.MinOpponentHP > 1:
		return fmt.Errorf("power_up.min_opponent_hp must be within [0,1], got %v", s.PowerUp.MinOpponentHP)
	case s.PowerUp.MinSelfHP < 0 || s.PowerUp.MinSelfHP > 1:
		return fmt.Errorf("power_up.min_self_hp must be within [0,1], got %v", s.PowerUp.MinSelfHP)
	}
	return nil
}

func (s *Strategy) Options() strategy.Options {
	return strategy.Options{
		SwitchThreshold:   s.SwitchThreshold,
		PowerUpOpponentHP: s.PowerUp.MinOpponentHP,
		PowerUpSelfHP:     s.PowerUp.MinSelfHP,
	}
}
