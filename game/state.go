package game

// Pokemon is what the protocol log has revealed about one team member.
// Opponent HP is reported by the server as a percentage, so MaxHP is 100
// for the foe side unless the battle exposes exact values.
type Pokemon struct {
	Species string
	HP      int
	MaxHP   int
	Fainted bool
	Moves   []string
	Status  string
	Ability string
	Boosts  map[string]int
	Types   []string
}

type Player struct {
	ID     string
	Name   string
	Team   map[string]*Pokemon
	Active *Pokemon
}

// BattleState accumulates protocol events for a single battle room.
type BattleState struct {
	Tag          string
	Players      map[string]*Player
	Turn         int
	Weather      string
	FieldEffects map[string]bool
	Finished     bool
	Winner       string
}

func NewBattleState(tag string) *BattleState {
	return &BattleState{
		Tag:          tag,
		Players:      make(map[string]*Player),
		FieldEffects: make(map[string]bool),
	}
}

// Player returns the player for a side id, creating it on first sight.
// Random battles have no team preview so sides often appear through
// |switch| before any |player| line is seen.
func (s *BattleState) Player(id string) *Player {
	p, ok := s.Players[id]
	if !ok {
		p = &Player{ID: id, Team: make(map[string]*Pokemon)}
		s.Players[id] = p
	}
	return p
}

// Pokemon returns the team entry for a nickname, creating it on first sight.
func (p *Player) Pokemon(name string) *Pokemon {
	poke, ok := p.Team[name]
	if !ok {
		poke = &Pokemon{Species: name}
		p.Team[name] = poke
	}
	return poke
}

// Foe returns the side that is not ours, or nil before it is known.
func (s *BattleState) Foe(ours string) *Player {
	for id, p := range s.Players {
		if id != ours {
			return p
		}
	}
	return nil
}
