package recorder

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"showdown-strategist/game"
)

// TurnRecord is one decision in the flat persisted layout. Nil pointers
// are written as empty CSV cells or SQL NULL.
type TurnRecord struct {
	Timestamp      string
	BattleTag      string
	Turn           int
	PlayerUsername string

	ActivePokemon    *string
	ActiveHP         *int
	ActiveMaxHP      *int
	ActiveHPFraction *float64
	ActiveStatus     *string
	ActiveAtk        *int
	ActiveDef        *int
	ActiveSpa        *int
	ActiveSpd        *int
	ActiveSpe        *int

	OpponentPokemon    *string
	OpponentHP         *int
	OpponentMaxHP      *int
	OpponentHPFraction *float64
	OpponentStatus     *string
	OpponentAtk        *int
	OpponentDef        *int
	OpponentSpa        *int
	OpponentSpd        *int
	OpponentSpe        *int

	SelectedMove          *string
	SelectedMoveType      *string
	SelectedMoveCategory  *string
	SelectedMoveBasePower *int
	SelectedMoveAccuracy  *int

	AvailableMoves    string
	AvailableSwitches string
	DamageDealt       float64
	Fainted           int
	WonBattle         *int
}

// Columns is the persisted field order.
var Columns = []string{
	"timestamp", "battle_tag", "turn", "player_username",
	"active_pokemon", "active_hp", "active_max_hp", "active_hp_fraction",
	"active_status", "active_atk", "active_def", "active_spa", "active_spd", "active_spe",
	"opponent_pokemon", "opponent_hp", "opponent_max_hp", "opponent_hp_fraction",
	"opponent_status", "opponent_atk", "opponent_def", "opponent_spa", "opponent_spd", "opponent_spe",
	"selected_move", "selected_move_type", "selected_move_category",
	"selected_move_base_power", "selected_move_accuracy",
	"available_moves", "available_switches",
	"damage_dealt", "fainted", "won_battle",
}

// Values returns the record's fields in Columns order. Nil pointers come
// back as untyped nil.
func (r *TurnRecord) Values() []any {
	return []any{
		r.Timestamp, r.BattleTag, r.Turn, r.PlayerUsername,
		deref(r.ActivePokemon), deref(r.ActiveHP), deref(r.ActiveMaxHP), deref(r.ActiveHPFraction),
		deref(r.ActiveStatus), deref(r.ActiveAtk), deref(r.ActiveDef), deref(r.ActiveSpa), deref(r.ActiveSpd), deref(r.ActiveSpe),
		deref(r.OpponentPokemon), deref(r.OpponentHP), deref(r.OpponentMaxHP), deref(r.OpponentHPFraction),
		deref(r.OpponentStatus), deref(r.OpponentAtk), deref(r.OpponentDef), deref(r.OpponentSpa), deref(r.OpponentSpd), deref(r.OpponentSpe),
		deref(r.SelectedMove), deref(r.SelectedMoveType), deref(r.SelectedMoveCategory),
		deref(r.SelectedMoveBasePower), deref(r.SelectedMoveAccuracy),
		r.AvailableMoves, r.AvailableSwitches,
		r.DamageDealt, r.Fainted, deref(r.WonBattle),
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Sink persists turn records.
type Sink interface {
	Write(r *TurnRecord) error
}

// Recorder shapes decisions into TurnRecords and forwards them to a Sink.
// It keeps the opponent's last seen HP per battle to derive damage dealt.
type Recorder struct {
	sink     Sink
	username string
	log      logrus.FieldLogger
	now      func() time.Time

	// battle tag -> previous opponent HP
	lastOpponentHP sync.Map
}

func New(sink Sink, username string, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{sink: sink, username: username, log: log, now: time.Now}
}

// Record never returns an error; failures are logged.
func (r *Recorder) Record(s *game.Snapshot, a game.Action) {
	if err := r.record(s, a); err != nil {
		fields := logrus.Fields{"action": a.String()}
		if s != nil {
			fields["battle"] = s.BattleTag
			fields["turn"] = s.Turn
		}
		r.log.WithFields(fields).WithError(err).Error("recording turn failed")
	}
}

func (r *Recorder) record(s *game.Snapshot, a game.Action) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	rec := r.Build(s, a)
	if r.sink == nil {
		return nil
	}
	if err := r.sink.Write(rec); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Build shapes the record and advances the damage cache for s.BattleTag.
func (r *Recorder) Build(s *game.Snapshot, a game.Action) *TurnRecord {
	rec := &TurnRecord{
		Timestamp:      r.now().Format("2006-01-02T15:04:05.000000"),
		BattleTag:      s.BattleTag,
		Turn:           s.Turn,
		PlayerUsername: r.username,
		AvailableMoves: strings.Join(lo.Map(s.Moves, func(m game.AttackAction, _ int) string {
			return m.ID
		}), "|"),
		AvailableSwitches: strings.Join(lo.Map(s.Switches, func(c game.Combatant, _ int) string {
			return c.Species
		}), "|"),
		DamageDealt: r.damageDealt(s),
	}

	if c := s.Active; c != nil {
		rec.ActivePokemon = lo.ToPtr(c.Species)
		rec.ActiveHP = lo.ToPtr(c.HP)
		rec.ActiveMaxHP = lo.ToPtr(c.MaxHP)
		rec.ActiveHPFraction = lo.ToPtr(c.HealthFraction())
		rec.ActiveStatus = nonEmpty(c.Status)
		rec.ActiveAtk = lo.ToPtr(c.Stats.Attack)
		rec.ActiveDef = lo.ToPtr(c.Stats.Defense)
		rec.ActiveSpa = lo.ToPtr(c.Stats.SpecialAttack)
		rec.ActiveSpd = lo.ToPtr(c.Stats.SpecialDefense)
		rec.ActiveSpe = lo.ToPtr(c.Stats.Speed)
	}
	if c := s.Opponent; c != nil {
		rec.OpponentPokemon = lo.ToPtr(c.Species)
		rec.OpponentHP = lo.ToPtr(c.HP)
		rec.OpponentMaxHP = lo.ToPtr(c.MaxHP)
		rec.OpponentHPFraction = lo.ToPtr(c.HealthFraction())
		rec.OpponentStatus = nonEmpty(c.Status)
		rec.OpponentAtk = lo.ToPtr(c.Stats.Attack)
		rec.OpponentDef = lo.ToPtr(c.Stats.Defense)
		rec.OpponentSpa = lo.ToPtr(c.Stats.SpecialAttack)
		rec.OpponentSpd = lo.ToPtr(c.Stats.SpecialDefense)
		rec.OpponentSpe = lo.ToPtr(c.Stats.Speed)
		if c.Fainted {
			rec.Fainted = 1
		}
	}

	if a.Kind == game.ActionMove && a.Move != nil {
		m := a.Move
		rec.SelectedMove = lo.ToPtr(m.ID)
		rec.SelectedMoveType = nonEmpty(m.Type)
		rec.SelectedMoveCategory = nonEmpty(m.Category)
		rec.SelectedMoveBasePower = lo.ToPtr(m.BasePower)
		rec.SelectedMoveAccuracy = m.Accuracy
	}

	if s.Finished {
		won := 0
		if s.Won != nil && *s.Won {
			won = 1
		}
		rec.WonBattle = &won
	}
	return rec
}

// damageDealt compares the opponent's HP with the last value seen in the
// same battle. The first sighting reads zero.
func (r *Recorder) damageDealt(s *game.Snapshot) float64 {
	if s.Opponent == nil {
		return 0
	}
	current := s.Opponent.HP
	prev, seen := r.lastOpponentHP.Swap(s.BattleTag, current)
	if !seen {
		return 0
	}
	return float64(prev.(int) - current)
}

// Forget drops the cached HP for a finished battle.
func (r *Recorder) Forget(battleTag string) {
	r.lastOpponentHP.Delete(battleTag)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
