package pokeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/ivnvaldz7/pokeclient"
)

// NamedResource is PokeAPI's {name, url} reference.
type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Validate requires an absolute URL.
func (r NamedResource) Validate() error {
	return validateURL("url", r.URL)
}

// PokemonList is the body of GET /pokemon.
type PokemonList struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []NamedResource `json:"results"`
}

func (l PokemonList) Validate() error {
	if l.Results == nil {
		return errors.New("results: required")
	}
	if l.Next != nil {
		if err := validateURL("next", *l.Next); err != nil {
			return err
		}
	}
	if l.Previous != nil {
		if err := validateURL("previous", *l.Previous); err != nil {
			return err
		}
	}
	return validateResources("results", l.Results)
}

type PokemonType struct {
	Slot int           `json:"slot"`
	Type NamedResource `json:"type"`
}

type PokemonStat struct {
	BaseStat int           `json:"base_stat"`
	Stat     NamedResource `json:"stat"`
}

type Sprite struct {
	FrontDefault *string `json:"front_default"`
}

type OtherSprites struct {
	OfficialArtwork *Sprite `json:"official-artwork,omitempty"`
	DreamWorld      *Sprite `json:"dream_world,omitempty"`
}

type Sprites struct {
	Other *OtherSprites `json:"other,omitempty"`
}

// Pokemon is the body of GET /pokemon/{name}.
type Pokemon struct {
	ID      int           `json:"id"`
	Name    string        `json:"name"`
	Height  int           `json:"height"`
	Weight  int           `json:"weight"`
	Types   []PokemonType `json:"types"`
	Stats   []PokemonStat `json:"stats"`
	Sprites Sprites       `json:"sprites"`
}

func (p Pokemon) Validate() error {
	if p.ID <= 0 {
		return errors.New("id: required")
	}
	if p.Name == "" {
		return errors.New("name: required")
	}
	if p.Types == nil {
		return errors.New("types: required")
	}
	if p.Stats == nil {
		return errors.New("stats: required")
	}
	for i, t := range p.Types {
		if err := t.Type.Validate(); err != nil {
			return fmt.Errorf("types[%d].type: %w", i, err)
		}
	}
	for i, s := range p.Stats {
		if err := s.Stat.Validate(); err != nil {
			return fmt.Errorf("stats[%d].stat: %w", i, err)
		}
	}
	if o := p.Sprites.Other; o != nil {
		for name, s := range map[string]*Sprite{"official-artwork": o.OfficialArtwork, "dream_world": o.DreamWorld} {
			if s != nil && s.FrontDefault != nil {
				if err := validateURL("sprites.other."+name+".front_default", *s.FrontDefault); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// TypeList is the body of GET /type.
type TypeList struct {
	Results []NamedResource `json:"results"`
}

func (l TypeList) Validate() error {
	if l.Results == nil {
		return errors.New("results: required")
	}
	return validateResources("results", l.Results)
}

// GenerationList is the body of GET /generation.
type GenerationList struct {
	Results []NamedResource `json:"results"`
}

func (l GenerationList) Validate() error {
	if l.Results == nil {
		return errors.New("results: required")
	}
	return validateResources("results", l.Results)
}

type TypePokemon struct {
	Pokemon NamedResource `json:"pokemon"`
}

// TypeDetail is the body of GET /type/{name}.
type TypeDetail struct {
	ID      int           `json:"id"`
	Name    string        `json:"name"`
	Pokemon []TypePokemon `json:"pokemon"`
}

func (d TypeDetail) Validate() error {
	if d.Name == "" {
		return errors.New("name: required")
	}
	if d.Pokemon == nil {
		return errors.New("pokemon: required")
	}
	for i, p := range d.Pokemon {
		if err := p.Pokemon.Validate(); err != nil {
			return fmt.Errorf("pokemon[%d].pokemon: %w", i, err)
		}
	}
	return nil
}

// GenerationDetail is the body of GET /generation/{name}.
type GenerationDetail struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	PokemonSpecies []NamedResource `json:"pokemon_species"`
}

func (d GenerationDetail) Validate() error {
	if d.Name == "" {
		return errors.New("name: required")
	}
	if d.PokemonSpecies == nil {
		return errors.New("pokemon_species: required")
	}
	return validateResources("pokemon_species", d.PokemonSpecies)
}

type validator interface {
	Validate() error
}

// parser decodes a body into T and validates it. Failures become
// non-retryable Parse errors in the engine.
func parser[T validator]() pokeclient.Parser {
	return func(body []byte) (interface{}, error) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode %T: %w", v, err)
		}
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validate %T: %w", v, err)
		}
		return v, nil
	}
}

func validateResources(field string, rs []NamedResource) error {
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s: invalid url %q", field, raw)
	}
	return nil
}
