package pokeapi

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// MapPokemon normalizes a Pokemon DTO. The image prefers the official
// artwork, then the dream world sprite.
func MapPokemon(p Pokemon) Summary {
	types := make([]PokemonType, len(p.Types))
	copy(types, p.Types)
	sort.SliceStable(types, func(i, j int) bool { return types[i].Slot < types[j].Slot })

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Type.Name
	}

	return Summary{
		ID:     p.ID,
		Name:   p.Name,
		Types:  names,
		Image:  artwork(p.Sprites),
		Height: p.Height,
		Weight: p.Weight,
		Stats: Stats{
			HP:             stat(p, "hp"),
			Attack:         stat(p, "attack"),
			Defense:        stat(p, "defense"),
			SpecialAttack:  stat(p, "special-attack"),
			SpecialDefense: stat(p, "special-defense"),
			Speed:          stat(p, "speed"),
		},
	}
}

func artwork(s Sprites) *string {
	if s.Other == nil {
		return nil
	}
	for _, sp := range []*Sprite{s.Other.OfficialArtwork, s.Other.DreamWorld} {
		if sp != nil && sp.FrontDefault != nil {
			v := *sp.FrontDefault
			return &v
		}
	}
	return nil
}

func stat(p Pokemon, name string) int {
	for _, s := range p.Stats {
		if s.Stat.Name == name {
			return s.BaseStat
		}
	}
	return 0
}

// MapListPage combines a list DTO with the summaries of its results.
func MapListPage(l PokemonList, results []Summary) ListPage {
	return ListPage{
		Count:      l.Count,
		NextOffset: offsetFromURL(l.Next),
		PrevOffset: offsetFromURL(l.Previous),
		Results:    results,
	}
}

// MapNamedIDs maps type or generation references to NamedIDs.
func MapNamedIDs(rs []NamedResource) []NamedID {
	out := make([]NamedID, len(rs))
	for i, r := range rs {
		out[i] = NamedID{ID: idFromURL(r.URL), Name: r.Name}
	}
	return out
}

// TypeDetailNames lists the Pokémon names of a type.
func TypeDetailNames(d TypeDetail) []string {
	names := make([]string, len(d.Pokemon))
	for i, p := range d.Pokemon {
		names[i] = p.Pokemon.Name
	}
	return names
}

// GenerationDetailNames lists the species names of a generation.
func GenerationDetailNames(d GenerationDetail) []string {
	names := make([]string, len(d.PokemonSpecies))
	for i, s := range d.PokemonSpecies {
		names[i] = s.Name
	}
	return names
}

// idFromURL returns the trailing numeric path segment, or 0.
func idFromURL(raw string) int {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return 0
	}
	id, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return id
}

// offsetFromURL returns the offset query parameter of raw, or nil.
func offsetFromURL(raw *string) *int {
	if raw == nil {
		return nil
	}
	u, err := url.Parse(*raw)
	if err != nil {
		return nil
	}
	v := u.Query().Get("offset")
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
