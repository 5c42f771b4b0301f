package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"showdown-strategist/game"
)

var (
	ErrDuplicateEvaluator = errors.New("evaluator already registered")
	ErrUnknownEvaluator   = errors.New("unknown evaluator")
)

// EvalFunc scores one attack action. It must not mutate its arguments.
// opp is the opponent's active combatant and may be nil.
type EvalFunc func(s *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (float64, error)

// Evaluator is a named scoring function with a fixed weight.
type Evaluator struct {
	Name   string
	Func   EvalFunc
	Weight float64
}

// ScoredAction pairs an attack action with its weighted total.
type ScoredAction struct {
	Action        *game.AttackAction
	Score         float64
	Contributions []Contribution
}

// Contribution is one evaluator's weighted share of a score.
type Contribution struct {
	Name  string
	Value float64
	Err   error
}

// Registry holds evaluators in registration order.
type Registry struct {
	evaluators []Evaluator
	log        logrus.FieldLogger
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{log: log}
}

func (r *Registry) Register(name string, fn EvalFunc, weight float64) error {
	if name == "" {
		return errors.New("evaluator name is empty")
	}
	if fn == nil {
		return fmt.Errorf("evaluator %q has no function", name)
	}
	for _, e := range r.evaluators {
		if e.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateEvaluator, name)
		}
	}
	r.evaluators = append(r.evaluators, Evaluator{Name: name, Func: fn, Weight: weight})
	return nil
}

// RegisterBuiltin registers one of the named built-in evaluators.
func (r *Registry) RegisterBuiltin(name string, weight float64) error {
	fn, ok := Builtins[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvaluator, name)
	}
	return r.Register(name, fn, weight)
}

func (r *Registry) Len() int {
	return len(r.evaluators)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.evaluators))
	for i, e := range r.evaluators {
		names[i] = e.Name
	}
	return names
}

// Evaluators returns a copy of the registered evaluators.
func (r *Registry) Evaluators() []Evaluator {
	out := make([]Evaluator, len(r.evaluators))
	copy(out, r.evaluators)
	return out
}

// Score is the sum of raw score times weight over every evaluator. A
// failing evaluator contributes zero.
func (r *Registry) Score(s *game.Snapshot, a *game.AttackAction, opp *game.Combatant) float64 {
	return sum(r.Breakdown(s, a, opp))
}

func sum(cs []Contribution) float64 {
	total := 0.0
	for _, c := range cs {
		total += c.Value
	}
	return total
}

// Breakdown returns each evaluator's weighted contribution in registration
// order. Failures are logged and reported with a zero value.
func (r *Registry) Breakdown(s *game.Snapshot, a *game.AttackAction, opp *game.Combatant) []Contribution {
	out := make([]Contribution, 0, len(r.evaluators))
	for _, e := range r.evaluators {
		raw, err := safeEval(e.Func, s, a, opp)
		if err != nil {
			fields := logrus.Fields{"evaluator": e.Name, "move": a.ID}
			if s != nil {
				fields["battle"] = s.BattleTag
			}
			r.log.WithFields(fields).WithError(err).Warn("evaluator failed")
			out = append(out, Contribution{Name: e.Name, Err: err})
			continue
		}
		out = append(out, Contribution{Name: e.Name, Value: raw * e.Weight})
	}
	return out
}

// safeEval turns panics and non-finite results into errors.
func safeEval(fn EvalFunc, s *game.Snapshot, a *game.AttackAction, opp *game.Combatant) (v float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = 0, fmt.Errorf("panic: %v", rec)
		}
	}()
	v, err = fn(s, a, opp)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite score %v", v)
	}
	return v, nil
}

// Rank scores every action, keeping the input order.
func (r *Registry) Rank(s *game.Snapshot, opp *game.Combatant) []ScoredAction {
	scored := make([]ScoredAction, len(s.Moves))
	for i := range s.Moves {
		cs := r.Breakdown(s, &s.Moves[i], opp)
		scored[i] = ScoredAction{Action: &s.Moves[i], Score: sum(cs), Contributions: cs}
	}
	return scored
}

// Best returns the highest scored action. Ties go to the earliest action.
func Best(scored []ScoredAction) (ScoredAction, bool) {
	if len(scored) == 0 {
		return ScoredAction{}, false
	}
	best := scored[0]
	for _, sa := range scored[1:] {
		if sa.Score > best.Score {
			best = sa
		}
	}
	return best, true
}
