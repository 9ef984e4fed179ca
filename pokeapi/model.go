// Package pokeapi reads Pokédex data from PokeAPI through a pokeclient.Client
// and maps it into the flat records the pokedex command serves.
package pokeapi

// Stats holds the base stats of a Pokémon. Missing stats are zero.
type Stats struct {
	HP             int `json:"hp" yaml:"hp"`
	Attack         int `json:"attack" yaml:"attack"`
	Defense        int `json:"defense" yaml:"defense"`
	SpecialAttack  int `json:"specialAttack" yaml:"specialAttack"`
	SpecialDefense int `json:"specialDefense" yaml:"specialDefense"`
	Speed          int `json:"speed" yaml:"speed"`
}

// Summary is the normalized view of one Pokémon.
type Summary struct {
	ID     int      `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	Types  []string `json:"types" yaml:"types"`
	Image  *string  `json:"image" yaml:"image"`
	Height int      `json:"height" yaml:"height"`
	Weight int      `json:"weight" yaml:"weight"`
	Stats  Stats    `json:"stats" yaml:"stats"`
}

// ListPage is one page of summaries.
type ListPage struct {
	Count      int       `json:"count" yaml:"count"`
	NextOffset *int      `json:"nextOffset" yaml:"nextOffset"`
	PrevOffset *int      `json:"prevOffset" yaml:"prevOffset"`
	Results    []Summary `json:"results" yaml:"results"`
}

// NamedID is a type or generation reference.
type NamedID struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Suggestions is the answer to a name search.
type Suggestions struct {
	Query string   `json:"query" yaml:"query"`
	Names []string `json:"suggestions" yaml:"suggestions"`
	Exact bool     `json:"exactMatch" yaml:"exactMatch"`
}
