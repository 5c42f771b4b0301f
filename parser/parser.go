package parser

import (
	"strconv"
	"strings"

	"showdown-strategist/game"
)

// ParseLog replays a full battle log into a fresh state.
func ParseLog(tag, logText string) *game.BattleState {
	state := game.NewBattleState(tag)
	for _, line := range strings.Split(logText, "\n") {
		ProcessLine(state, line)
	}
	return state
}

// splitIdent turns "p2a: Gyarados" into ("p2", "Gyarados").
func splitIdent(ident string) (string, string, bool) {
	info := strings.SplitN(ident, ": ", 2)
	if len(info) != 2 || len(info[0]) < 2 {
		return "", "", false
	}
	return info[0][:2], info[1], true
}

// speciesFromDetails extracts the species from "Gyarados, L84, F".
func speciesFromDetails(details string) string {
	return strings.TrimSpace(strings.SplitN(details, ",", 2)[0])
}

// ParseCondition reads an HP condition such as "63/100 par" or "0 fnt".
// maxHP is 0 when the condition does not carry it.
func ParseCondition(cond string) (hp, maxHP int, status string, fainted bool) {
	fields := strings.Fields(cond)
	if len(fields) == 0 {
		return 0, 0, "", false
	}
	hpInfo := strings.Split(fields[0], "/")
	hp, _ = strconv.Atoi(strings.TrimSpace(hpInfo[0]))
	if len(hpInfo) == 2 {
		maxHP, _ = strconv.Atoi(strings.TrimSpace(hpInfo[1]))
	}
	if len(fields) > 1 {
		if fields[1] == "fnt" {
			fainted = true
		} else {
			status = fields[1]
		}
	}
	return hp, maxHP, status, fainted
}

func applyCondition(poke *game.Pokemon, cond string) {
	hp, maxHP, status, fainted := ParseCondition(cond)
	poke.HP = hp
	if maxHP > 0 {
		poke.MaxHP = maxHP
	}
	poke.Status = status
	poke.Fainted = fainted
}

func lookup(state *game.BattleState, ident string) *game.Pokemon {
	playerID, name, ok := splitIdent(ident)
	if !ok {
		return nil
	}
	return state.Player(playerID).Pokemon(name)
}

// ProcessLine applies one protocol line to state. Unknown lines are
// ignored.
func ProcessLine(state *game.BattleState, line string) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) < 2 {
		return
	}
	switch parts[1] {
	case "player":
		if len(parts) >= 4 && parts[3] != "" {
			state.Player(parts[2]).Name = parts[3]
		}
	case "poke":
		if len(parts) >= 4 {
			species := speciesFromDetails(parts[3])
			state.Player(parts[2]).Pokemon(species).Species = species
		}
	case "switch", "drag", "replace":
		if len(parts) >= 4 {
			playerID, name, ok := splitIdent(parts[2])
			if !ok {
				return
			}
			player := state.Player(playerID)
			poke := player.Pokemon(name)
			poke.Species = speciesFromDetails(parts[3])
			// Boosts do not survive a switch out.
			if player.Active != nil && player.Active != poke {
				player.Active.Boosts = nil
			}
			poke.Boosts = nil
			player.Active = poke
			if len(parts) >= 5 {
				applyCondition(poke, parts[4])
			}
		}
	case "detailschange", "-formechange":
		if len(parts) >= 4 {
			if poke := lookup(state, parts[2]); poke != nil {
				poke.Species = speciesFromDetails(parts[3])
			}
		}
	case "move":
		if len(parts) >= 4 {
			if poke := lookup(state, parts[2]); poke != nil {
				moveName := parts[3]
				exists := false
				for _, m := range poke.Moves {
					if m == moveName {
						exists = true
						break
					}
				}
				if !exists {
					poke.Moves = append(poke.Moves, moveName)
				}
			}
		}
	case "damage", "-damage", "-heal", "-sethp":
		if len(parts) >= 4 {
			if poke := lookup(state, parts[2]); poke != nil {
				applyCondition(poke, parts[3])
			}
		}
	case "faint":
		if len(parts) >= 3 {
			if poke := lookup(state, parts[2]); poke != nil {
				poke.Fainted = true
				poke.HP = 0
			}
		}
	case "turn":
		if len(parts) >= 3 {
			if t, err := strconv.Atoi(parts[2]); err == nil {
				state.Turn = t
			}
		}
	case "-status":
		if len(parts) >= 4 {
			if poke := lookup(state, parts[2]); poke != nil {
				poke.Status = parts[3]
			}
		}
	case "-curestatus":
		if len(parts) >= 3 {
			if poke := lookup(state, parts[2]); poke != nil {
				poke.Status = ""
			}
		}
	case "-boost", "-unboost", "-setboost":
		if len(parts) >= 5 {
			if poke := lookup(state, parts[2]); poke != nil {
				stat := parts[3]
				amount, _ := strconv.Atoi(parts[4])
				if poke.Boosts == nil {
					poke.Boosts = make(map[string]int)
				}
				switch parts[1] {
				case "-boost":
					poke.Boosts[stat] += amount
				case "-unboost":
					poke.Boosts[stat] -= amount
				default:
					poke.Boosts[stat] = amount
				}
			}
		}
	case "-clearboost":
		if len(parts) >= 3 {
			if poke := lookup(state, parts[2]); poke != nil {
				poke.Boosts = nil
			}
		}
	case "-terastallize":
		if len(parts) >= 4 {
			if poke := lookup(state, parts[2]); poke != nil {
				poke.Types = []string{parts[3]}
			}
		}
	case "-weather":
		if len(parts) >= 3 {
			if parts[2] == "none" {
				state.Weather = ""
			} else {
				state.Weather = parts[2]
			}
		}
	case "-fieldstart":
		if len(parts) >= 3 {
			state.FieldEffects[parts[2]] = true
		}
	case "-fieldend":
		if len(parts) >= 3 {
			delete(state.FieldEffects, parts[2])
		}
	case "-ability":
		if len(parts) >= 4 {
			if poke := lookup(state, parts[2]); poke != nil {
				poke.Ability = parts[3]
			}
		}
	case "win":
		state.Finished = true
		if len(parts) >= 3 {
			state.Winner = parts[2]
		}
	case "tie":
		state.Finished = true
	}
}
