package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the payload of a |request| line: what the server will accept
// from us for the current decision.
type Request struct {
	RequestID   int             `json:"rqid"`
	Active      []ActiveRequest `json:"active"`
	Side        SideRequest     `json:"side"`
	ForceSwitch []bool          `json:"forceSwitch"`
	Wait        bool            `json:"wait"`
	TeamPreview bool            `json:"teamPreview"`
}

type ActiveRequest struct {
	Moves           []MoveRequest `json:"moves"`
	Trapped         bool          `json:"trapped"`
	CanTerastallize string        `json:"canTerastallize"`
	CanDynamax      bool          `json:"canDynamax"`
	CanMegaEvo      bool          `json:"canMegaEvo"`
}

type MoveRequest struct {
	Move     string `json:"move"`
	ID       string `json:"id"`
	PP       int    `json:"pp"`
	MaxPP    int    `json:"maxpp"`
	Disabled bool   `json:"disabled"`
}

type SideRequest struct {
	Name    string           `json:"name"`
	ID      string           `json:"id"`
	Pokemon []PokemonRequest `json:"pokemon"`
}

type PokemonRequest struct {
	Ident         string         `json:"ident"`
	Details       string         `json:"details"`
	Condition     string         `json:"condition"`
	Active        bool           `json:"active"`
	Stats         map[string]int `json:"stats"`
	Moves         []string       `json:"moves"`
	Terastallized string         `json:"terastallized"`
}

// ParseRequest decodes the JSON body of a |request| line. An empty body
// yields a nil request.
func ParseRequest(body string) (*Request, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return &req, nil
}

// MustSwitch reports whether the server only accepts a switch.
func (r *Request) MustSwitch() bool {
	for _, f := range r.ForceSwitch {
		if f {
			return true
		}
	}
	return false
}

// Species returns the species part of the pokemon's details.
func (p PokemonRequest) Species() string {
	return speciesFromDetails(p.Details)
}

// Fainted reports whether the pokemon's condition reads fainted.
func (p PokemonRequest) Fainted() bool {
	_, _, _, fainted := ParseCondition(p.Condition)
	return fainted
}
