package game

import (
	"fmt"
	"strings"
)

// Move categories as reported by the move database.
const (
	CategoryPhysical = "Physical"
	CategorySpecial  = "Special"
	CategoryStatus   = "Status"
)

// Stats holds the five battle stats. The hp stat is carried by Combatant.
type Stats struct {
	Attack         int
	Defense        int
	SpecialAttack  int
	SpecialDefense int
	Speed          int
}

// Combatant is one party member as seen at a decision point.
type Combatant struct {
	Species string
	HP      int
	MaxHP   int
	Types   []string
	Status  string
	Stats   Stats
	Fainted bool
	// Slot is the 1-based team position the server expects in /choose switch.
	Slot int
}

// HealthFraction is HP/MaxHP clamped to [0,1]. A combatant with unknown
// max HP reads as empty.
func (c *Combatant) HealthFraction() float64 {
	if c == nil || c.MaxHP <= 0 {
		return 0
	}
	f := float64(c.HP) / float64(c.MaxHP)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// DamageMultiplier is the type-chart factor for an attack of the given
// type hitting this combatant.
func (c *Combatant) DamageMultiplier(attackType string) float64 {
	if c == nil {
		return 1
	}
	return Effectiveness(attackType, c.Types)
}

// HasType reports whether t is one of the combatant's types.
func (c *Combatant) HasType(t string) bool {
	if c == nil {
		return false
	}
	for _, own := range c.Types {
		if strings.EqualFold(own, t) {
			return true
		}
	}
	return false
}

// AttackAction is a move the active combatant may use this turn.
type AttackAction struct {
	ID        string
	Name      string
	Type      string
	Category  string
	BasePower int
	// Accuracy is a percentage; nil means the move cannot miss.
	Accuracy *int
	Priority int
	Boosts   map[string]int
	PP       int
	MaxPP    int
	// Slot is the 1-based move position the server expects in /choose move.
	Slot int
}

// NetBoost is the sum of all stat stage changes the move grants.
func (a *AttackAction) NetBoost() int {
	total := 0
	for _, v := range a.Boosts {
		total += v
	}
	return total
}

// PPFraction returns remaining uses over maximum uses. ok is false when the
// maximum is unknown.
func (a *AttackAction) PPFraction() (float64, bool) {
	if a.MaxPP <= 0 {
		return 0, false
	}
	return float64(a.PP) / float64(a.MaxPP), true
}

// IsDamaging reports whether the move has positive base power.
func (a *AttackAction) IsDamaging() bool {
	return a.BasePower > 0
}

// Snapshot is the read-only view of one decision point.
type Snapshot struct {
	BattleTag  string
	Turn       int
	Active     *Combatant
	Opponent   *Combatant
	Moves      []AttackAction
	Switches   []Combatant
	CanPowerUp bool
	// PowerUpKeyword is the /choose suffix for the power-up on offer.
	PowerUpKeyword string
	Finished       bool
	// Won is nil until the battle is finished.
	Won *bool
}

type ActionKind int

const (
	ActionDefault ActionKind = iota
	ActionMove
	ActionSwitch
)

func (k ActionKind) String() string {
	switch k {
	case ActionMove:
		return "move"
	case ActionSwitch:
		return "switch"
	default:
		return "default"
	}
}

// Action is exactly one choice for a decision point.
type Action struct {
	Kind    ActionKind
	Move    *AttackAction
	Switch  *Combatant
	PowerUp bool
	// PowerUpKeyword is appended to the move command when PowerUp is set,
	// e.g. "terastallize" or "dynamax".
	PowerUpKeyword string
}

func MoveAction(m *AttackAction) Action {
	return Action{Kind: ActionMove, Move: m}
}

func SwitchAction(c *Combatant) Action {
	return Action{Kind: ActionSwitch, Switch: c}
}

func DefaultAction() Action {
	return Action{Kind: ActionDefault}
}

// Command renders the argument of a Showdown /choose command.
func (a Action) Command() string {
	switch {
	case a.Kind == ActionMove && a.Move != nil:
		cmd := fmt.Sprintf("move %d", a.Move.Slot)
		if a.PowerUp && a.PowerUpKeyword != "" {
			cmd += " " + a.PowerUpKeyword
		}
		return cmd
	case a.Kind == ActionSwitch && a.Switch != nil:
		return fmt.Sprintf("switch %d", a.Switch.Slot)
	}
	return "default"
}

func (a Action) String() string {
	switch {
	case a.Kind == ActionMove && a.Move != nil:
		if a.PowerUp {
			return a.Move.ID + " (power-up)"
		}
		return a.Move.ID
	case a.Kind == ActionSwitch && a.Switch != nil:
		return "switch " + a.Switch.Species
	}
	return "default"
}
