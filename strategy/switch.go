package strategy

import "showdown-strategist/game"

// SwitchAdvisor scores how much better off we would be with candidate in
// play against opp.
type SwitchAdvisor interface {
	EvaluateSwitch(s *game.Snapshot, candidate *game.Combatant, opp *game.Combatant) float64
}

// DefensiveAdvisor compares raw bulk and remaining health. It does not
// consult the type chart.
type DefensiveAdvisor struct{}

func (DefensiveAdvisor) EvaluateSwitch(s *game.Snapshot, candidate *game.Combatant, opp *game.Combatant) float64 {
	if s == nil || s.Active == nil || opp == nil || candidate == nil {
		return 0
	}
	active := s.Active
	score := 0.0

	current := DefensiveScore(active, opp)
	if improvement := DefensiveScore(candidate, opp) - current; improvement > 1.0 {
		score += 100 * improvement
	}

	hp := active.HealthFraction()
	if hp < 0.25 {
		score += 80
	} else if hp < 0.5 {
		score += 40
	}

	if candidate.HealthFraction() > hp+0.3 {
		score += 50
	}

	// Stay in when already comfortable.
	if current > 0.5 && hp > 0.7 {
		score -= 100
	}
	return score
}

// DefensiveScore is def/100 + spd/100 + health fraction. Types are not
// considered, so the opponent is unused.
func DefensiveScore(c *game.Combatant, _ *game.Combatant) float64 {
	if c == nil {
		return 0
	}
	return float64(c.Stats.Defense)/100 + float64(c.Stats.SpecialDefense)/100 + c.HealthFraction()
}

// AdvisorFunc adapts a plain function to SwitchAdvisor.
type AdvisorFunc func(s *game.Snapshot, candidate *game.Combatant, opp *game.Combatant) float64

func (f AdvisorFunc) EvaluateSwitch(s *game.Snapshot, candidate *game.Combatant, opp *game.Combatant) float64 {
	return f(s, candidate, opp)
}
