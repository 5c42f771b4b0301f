package parser

import (
	"github.com/samber/lo"

	"showdown-strategist/data"
	"showdown-strategist/game"
)

// BuildSnapshot combines the tracked battle state with the pending request
// into the view the policy engine decides on. Species and move details the
// dex does not know are left zero.
func BuildSnapshot(state *game.BattleState, req *Request, dex *data.Dex) *game.Snapshot {
	s := &game.Snapshot{
		BattleTag: state.Tag,
		Turn:      state.Turn,
		Finished:  state.Finished,
	}
	if state.Finished {
		s.Won = lo.ToPtr(state.Winner != "" && state.Winner == req.Side.Name)
	}

	for i, p := range req.Side.Pokemon {
		if p.Active {
			s.Active = ownCombatant(p, i+1, dex)
			break
		}
	}

	if foe := state.Foe(req.Side.ID); foe != nil && foe.Active != nil {
		s.Opponent = foeCombatant(foe.Active, dex)
	}

	trapped := false
	if !req.MustSwitch() && len(req.Active) > 0 {
		active := req.Active[0]
		trapped = active.Trapped
		s.Moves = lo.FilterMap(active.Moves, func(m MoveRequest, i int) (game.AttackAction, bool) {
			if m.Disabled {
				return game.AttackAction{}, false
			}
			return attackAction(m, i+1, dex), true
		})
		switch {
		case active.CanTerastallize != "":
			s.CanPowerUp, s.PowerUpKeyword = true, "terastallize"
		case active.CanDynamax:
			s.CanPowerUp, s.PowerUpKeyword = true, "dynamax"
		case active.CanMegaEvo:
			s.CanPowerUp, s.PowerUpKeyword = true, "mega"
		}
	}

	if !trapped {
		for i, p := range req.Side.Pokemon {
			if p.Active || p.Fainted() {
				continue
			}
			s.Switches = append(s.Switches, *ownCombatant(p, i+1, dex))
		}
	}
	return s
}

func ownCombatant(p PokemonRequest, slot int, dex *data.Dex) *game.Combatant {
	hp, maxHP, status, fainted := ParseCondition(p.Condition)
	c := &game.Combatant{
		Species: p.Species(),
		HP:      hp,
		MaxHP:   maxHP,
		Status:  status,
		Fainted: fainted,
		Slot:    slot,
	}
	if info, ok := dex.Pokemon(c.Species); ok {
		c.Types = info.Types
		c.Stats = info.Stats
	} else {
		c.Stats = game.Stats{
			Attack:         p.Stats["atk"],
			Defense:        p.Stats["def"],
			SpecialAttack:  p.Stats["spa"],
			SpecialDefense: p.Stats["spd"],
			Speed:          p.Stats["spe"],
		}
	}
	if p.Terastallized != "" {
		c.Types = []string{p.Terastallized}
	}
	return c
}

func foeCombatant(p *game.Pokemon, dex *data.Dex) *game.Combatant {
	c := &game.Combatant{
		Species: p.Species,
		HP:      p.HP,
		MaxHP:   p.MaxHP,
		Status:  p.Status,
		Fainted: p.Fainted,
		Types:   p.Types,
	}
	if c.MaxHP == 0 {
		c.MaxHP = 100
	}
	if info, ok := dex.Pokemon(p.Species); ok {
		c.Stats = info.Stats
		if len(c.Types) == 0 {
			c.Types = info.Types
		}
	}
	return c
}

func attackAction(m MoveRequest, slot int, dex *data.Dex) game.AttackAction {
	a := game.AttackAction{
		ID:    m.ID,
		Name:  m.Move,
		PP:    m.PP,
		MaxPP: m.MaxPP,
		Slot:  slot,
	}
	if info, ok := dex.Move(m.ID); ok {
		a.Type = info.Type
		a.Category = info.Category
		a.BasePower = info.Power
		a.Accuracy = info.Accuracy
		a.Priority = info.Priority
		a.Boosts = info.Boosts
	}
	return a
}
