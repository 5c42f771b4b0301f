package strategy

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"showdown-strategist/game"
)

// DecisionMaker picks exactly one action for a snapshot.
type DecisionMaker interface {
	Decide(s *game.Snapshot) game.Action
}

// Submitter hands a chosen action to the battle server.
type Submitter interface {
	Submit(s *game.Snapshot, a game.Action) error
}

// TurnRecorder receives every decision after it is submitted. It must
// handle its own failures.
type TurnRecorder interface {
	Record(s *game.Snapshot, a game.Action)
}

type Options struct {
	// SwitchThreshold is the advisor score a switch must exceed to
	// pre-empt move selection.
	SwitchThreshold float64
	// The power-up is used when the opponent is above PowerUpOpponentHP
	// and we are above PowerUpSelfHP.
	PowerUpOpponentHP float64
	PowerUpSelfHP     float64
}

func DefaultOptions() Options {
	return Options{
		SwitchThreshold:   150,
		PowerUpOpponentHP: 0.6,
		PowerUpSelfHP:     0.4,
	}
}

// Engine is the policy: switch advisor first, then weighted move scoring.
type Engine struct {
	registry *Registry
	advisor  SwitchAdvisor
	recorder TurnRecorder
	opts     Options
	log      logrus.FieldLogger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Engine)

func WithAdvisor(a SwitchAdvisor) Option {
	return func(e *Engine) { e.advisor = a }
}

func WithRecorder(r TurnRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithOptions(o Options) Option {
	return func(e *Engine) { e.opts = o }
}

func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(registry *Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	seed := uint64(time.Now().UnixNano())
	e := &Engine{
		registry: registry,
		advisor:  DefensiveAdvisor{},
		opts:     DefaultOptions(),
		log:      logrus.StandardLogger(),
		rng:      rand.New(rand.NewPCG(seed, seed>>1)),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Decide never fails: when nothing better applies it returns the
// server's default choice.
func (e *Engine) Decide(s *game.Snapshot) game.Action {
	if s == nil {
		return game.DefaultAction()
	}
	log := e.log.WithFields(logrus.Fields{"battle": s.BattleTag, "turn": s.Turn})

	if e.registry.Len() == 0 {
		return e.fallback(s)
	}

	if len(s.Switches) > 0 && s.Opponent != nil {
		if target, score := e.bestSwitch(s); target != nil && score > e.opts.SwitchThreshold {
			log.WithFields(logrus.Fields{"target": target.Species, "score": score}).Info("switching out")
			return game.SwitchAction(target)
		}
	}

	if len(s.Moves) == 0 {
		return e.randomSwitch(s)
	}

	ranked := e.registry.Rank(s, s.Opponent)
	for _, sa := range ranked {
		fields := logrus.Fields{"move": sa.Action.ID, "total": sa.Score}
		for _, c := range sa.Contributions {
			if c.Value != 0 {
				fields[c.Name] = c.Value
			}
		}
		log.WithFields(fields).Debug("move scored")
	}
	best, _ := Best(ranked)

	action := game.MoveAction(best.Action)
	if e.usePowerUp(s) {
		action.PowerUp = true
		action.PowerUpKeyword = s.PowerUpKeyword
	}
	log.WithFields(logrus.Fields{"move": best.Action.ID, "score": best.Score, "power_up": action.PowerUp}).Info("move chosen")
	return action
}

// Play decides, submits, then records. Recording happens even when the
// submission fails and never affects the returned error.
func (e *Engine) Play(s *game.Snapshot, sub Submitter) error {
	action := e.Decide(s)
	var err error
	if subErr := sub.Submit(s, action); subErr != nil {
		err = fmt.Errorf("submitting %s: %w", action, subErr)
	}
	if e.recorder != nil {
		e.recorder.Record(s, action)
	}
	return err
}

func (e *Engine) bestSwitch(s *game.Snapshot) (*game.Combatant, float64) {
	var best *game.Combatant
	bestScore := 0.0
	for i := range s.Switches {
		score := e.advisor.EvaluateSwitch(s, &s.Switches[i], s.Opponent)
		if score > bestScore {
			best, bestScore = &s.Switches[i], score
		}
	}
	return best, bestScore
}

func (e *Engine) usePowerUp(s *game.Snapshot) bool {
	if !s.CanPowerUp || s.Opponent == nil || s.Active == nil {
		return false
	}
	return s.Opponent.HealthFraction() > e.opts.PowerUpOpponentHP &&
		s.Active.HealthFraction() > e.opts.PowerUpSelfHP
}

// fallback is the no-evaluator policy: strongest move, first one on ties.
func (e *Engine) fallback(s *game.Snapshot) game.Action {
	if len(s.Moves) == 0 {
		return e.randomSwitch(s)
	}
	best := &s.Moves[0]
	for i := range s.Moves[1:] {
		if m := &s.Moves[i+1]; m.BasePower > best.BasePower {
			best = m
		}
	}
	return game.MoveAction(best)
}

func (e *Engine) randomSwitch(s *game.Snapshot) game.Action {
	if len(s.Switches) == 0 {
		return game.DefaultAction()
	}
	e.mu.Lock()
	i := e.rng.IntN(len(s.Switches))
	e.mu.Unlock()
	return game.SwitchAction(&s.Switches[i])
}
