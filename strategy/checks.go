package strategy

import "showdown-strategist/game"

const (
	SuperEffective     = "super-effective"
	SameTypeBonus      = "same-type-bonus"
	AvoidIneffective   = "avoid-ineffective"
	HighBasePower      = "high-base-power"
	HighAccuracy       = "high-accuracy"
	InflictStatus      = "inflict-status"
	PreserveUses       = "preserve-uses"
	EarlySetup         = "early-setup"
	SetupOnResist      = "setup-on-resist"
	SwitchOnBadMatchup = "switch-on-bad-matchup"
	OffensivePressure  = "offensive-pressure"
	PriorityFinisher   = "priority-finisher"
)

// Builtins maps evaluator names to their functions so strategies can be
// assembled from configuration.
var Builtins = map[string]EvalFunc{
	SuperEffective:     CheckSuperEffective,
	SameTypeBonus:      CheckSameTypeBonus,
	AvoidIneffective:   CheckAvoidIneffective,
	HighBasePower:      CheckHighBasePower,
	HighAccuracy:       CheckHighAccuracy,
	InflictStatus:      CheckInflictStatus,
	PreserveUses:       CheckPreserveUses,
	EarlySetup:         CheckEarlySetup,
	SetupOnResist:      CheckSetupOnResist,
	SwitchOnBadMatchup: CheckSwitchOnBadMatchup,
	OffensivePressure:  CheckOffensivePressure,
	PriorityFinisher:   CheckPriorityFinisher,
}

// WeightedName is a built-in evaluator name with its weight.
type WeightedName struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// DefaultWeights is the ladder line-up: type matchups dominate, raw power
// and accuracy break ties.
var DefaultWeights = []WeightedName{
	{SuperEffective, 3},
	{SameTypeBonus, 2},
	{AvoidIneffective, 2},
	{HighBasePower, 1},
	{HighAccuracy, 1},
	{InflictStatus, 1},
	{PreserveUses, 1},
	{EarlySetup, 1},
	{SetupOnResist, 1},
	{SwitchOnBadMatchup, 1},
	{OffensivePressure, 1},
	{PriorityFinisher, 2},
}

// RegisterAll registers built-in evaluators from a weight list, stopping
// at the first unknown or duplicate name.
func (r *Registry) RegisterAll(weights []WeightedName) error {
	for _, w := range weights {
		if err := r.RegisterBuiltin(w.Name, w.Weight); err != nil {
			return err
		}
	}
	return nil
}

func CheckSuperEffective(_ *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error) {
	if opp == nil || a.Type == "" || !a.IsDamaging() {
		return 0, nil
	}
	if m := opp.DamageMultiplier(a.Type); m > 1 {
		return 100 * m, nil
	}
	return 0, nil
}

func CheckSameTypeBonus(s *game.Snapshot, a *game.AttackAction, _ *game.Combatant) (float64, error) {
	if s == nil || a.Type == "" || !s.Active.HasType(a.Type) {
		return 0, nil
	}
	return 50, nil
}

func CheckAvoidIneffective(_ *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error) {
	if opp == nil || a.Type == "" || !a.IsDamaging() {
		return 0, nil
	}
	if m := opp.DamageMultiplier(a.Type); m < 1 {
		return -50 * (1 - m), nil
	}
	return 0, nil
}

func CheckHighBasePower(_ *game.Snapshot, a *game.AttackAction, _ *game.Combatant) (float64, error) {
	if a.BasePower <= 0 {
		return 0, nil
	}
	return float64(a.BasePower), nil
}

func CheckHighAccuracy(_ *game.Snapshot, a *game.AttackAction, _ *game.Combatant) (float64, error) {
	if a.Accuracy == nil {
		return 100, nil
	}
	return float64(*a.Accuracy), nil
}

func CheckInflictStatus(_ *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error) {
	if opp == nil || a.Category != game.CategoryStatus || opp.Status != "" {
		return 0, nil
	}
	return 30, nil
}

func CheckPreserveUses(_ *game.Snapshot, a *game.AttackAction, _ *game.Combatant) (float64, error) {
	if f, ok := a.PPFraction(); ok && f < 0.3 {
		return -20, nil
	}
	return 0, nil
}

func CheckEarlySetup(s *game.Snapshot, a *game.AttackAction, _ *game.Combatant) (float64, error) {
	if s == nil || a.NetBoost() <= 0 || s.Turn >= 3 {
		return 0, nil
	}
	return 40, nil
}

// CheckSetupOnResist favours boosting when the foe is nearly down or we
// are healthy enough to absorb a hit. The low-foe branch wins.
func CheckSetupOnResist(s *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error) {
	if opp == nil || a.NetBoost() <= 0 {
		return 0, nil
	}
	if opp.HealthFraction() < 0.3 {
		return 60, nil
	}
	if s != nil && s.Active != nil && s.Active.HealthFraction() > 0.7 {
		return 50, nil
	}
	return 0, nil
}

func CheckSwitchOnBadMatchup(_ *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error) {
	if opp == nil || !a.IsDamaging() {
		return 0, nil
	}
	if opp.DamageMultiplier(a.Type) < 0.5 {
		return -100, nil
	}
	return 0, nil
}

func CheckOffensivePressure(_ *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error) {
	if opp == nil || !a.IsDamaging() || opp.HealthFraction() <= 0.5 {
		return 0, nil
	}
	return float64(a.BasePower) * 0.5, nil
}

func CheckPriorityFinisher(_ *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error) {
	if opp == nil || a.Priority <= 0 || opp.HealthFraction() >= 0.3 {
		return 0, nil
	}
	return 75, nil
}
