package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"showdown-strategist/game"
)

type PokemonData struct {
	Name  string
	Types []string
	Stats game.Stats
}

type MoveData struct {
	Name     string
	Type     string
	Category string
	Power    int
	Accuracy *int
	Priority int
	Boosts   map[string]int
	PP       int
}

type rawPokemonData struct {
	Name      string         `json:"name"`
	Types     []string       `json:"types"`
	BaseStats map[string]int `json:"baseStats"`
}

type rawMoveData struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Power    int             `json:"basePower"`
	Accuracy json.RawMessage `json:"accuracy"`
	Priority int             `json:"priority"`
	Boosts   map[string]int  `json:"boosts"`
	PP       int             `json:"pp"`
}

// Dex is the species and move database, keyed by Showdown id.
type Dex struct {
	pokemon map[string]PokemonData
	moves   map[string]MoveData
}

func NewDex() *Dex {
	return &Dex{
		pokemon: make(map[string]PokemonData),
		moves:   make(map[string]MoveData),
	}
}

// Load reads pokedex.json and moves.json from dir.
func Load(dir string) (*Dex, error) {
	d := NewDex()
	if err := d.LoadPokemonData(filepath.Join(dir, "pokedex.json")); err != nil {
		return nil, err
	}
	if err := d.LoadMoveData(filepath.Join(dir, "moves.json")); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dex) LoadPokemonData(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening pokedex: %w", err)
	}
	defer file.Close()
	return d.ReadPokemon(file)
}

func (d *Dex) ReadPokemon(r io.Reader) error {
	var rawData map[string]rawPokemonData
	if err := json.NewDecoder(r).Decode(&rawData); err != nil {
		return fmt.Errorf("decoding pokedex: %w", err)
	}
	for key, p := range rawData {
		name := p.Name
		if name == "" {
			name = key
		}
		d.pokemon[ToID(name)] = PokemonData{
			Name:  name,
			Types: p.Types,
			Stats: game.Stats{
				Attack:         p.BaseStats["atk"],
				Defense:        p.BaseStats["def"],
				SpecialAttack:  p.BaseStats["spa"],
				SpecialDefense: p.BaseStats["spd"],
				Speed:          p.BaseStats["spe"],
			},
		}
	}
	return nil
}

func (d *Dex) LoadMoveData(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening moves: %w", err)
	}
	defer file.Close()
	return d.ReadMoves(file)
}

func (d *Dex) ReadMoves(r io.Reader) error {
	var rawData map[string]rawMoveData
	if err := json.NewDecoder(r).Decode(&rawData); err != nil {
		return fmt.Errorf("decoding moves: %w", err)
	}
	for key, m := range rawData {
		name := m.Name
		if name == "" {
			name = key
		}
		acc, err := parseAccuracy(m.Accuracy)
		if err != nil {
			return fmt.Errorf("move %s: %w", name, err)
		}
		d.moves[ToID(name)] = MoveData{
			Name:     name,
			Type:     m.Type,
			Category: m.Category,
			Power:    m.Power,
			Accuracy: acc,
			Priority: m.Priority,
			Boosts:   m.Boosts,
			PP:       m.PP,
		}
	}
	return nil
}

// parseAccuracy handles the export's accuracy field, which is either a
// percentage or the literal true for moves that never miss.
func parseAccuracy(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("true")) || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("invalid accuracy %s", raw)
	}
	return &n, nil
}

// Pokemon looks a species up by any spelling of its name.
func (d *Dex) Pokemon(name string) (PokemonData, bool) {
	p, ok := d.pokemon[ToID(name)]
	return p, ok
}

// Move looks a move up by name or id.
func (d *Dex) Move(name string) (MoveData, bool) {
	m, ok := d.moves[ToID(name)]
	return m, ok
}

func (d *Dex) GetPokemonTypes(name string) []string {
	if p, ok := d.Pokemon(name); ok {
		return p.Types
	}
	return nil
}

// AddPokemon and AddMove register entries directly.
func (d *Dex) AddPokemon(p PokemonData) {
	d.pokemon[ToID(p.Name)] = p
}

func (d *Dex) AddMove(m MoveData) {
	d.moves[ToID(m.Name)] = m
}

// ToID converts a display name into a Showdown id: accents folded,
// lowercased, everything outside [a-z0-9] dropped.
func ToID(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var sb strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
