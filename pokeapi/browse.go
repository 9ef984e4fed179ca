package pokeapi

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

type SortKey string

const (
	SortID             SortKey = "id"
	SortName           SortKey = "name"
	SortHP             SortKey = "hp"
	SortAttack         SortKey = "attack"
	SortDefense        SortKey = "defense"
	SortSpecialAttack  SortKey = "specialAttack"
	SortSpecialDefense SortKey = "specialDefense"
	SortSpeed          SortKey = "speed"
)

var sortKeys = []SortKey{SortID, SortName, SortHP, SortAttack, SortDefense, SortSpecialAttack, SortSpecialDefense, SortSpeed}

// ParseSortKey accepts any sort key case-insensitively. Empty means id.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortID, nil
	}
	for _, k := range sortKeys {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

const (
	DefaultPageSize = 20
	MaxSuggestions  = 8
)

type Filters struct {
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Generation string `json:"generation,omitempty" yaml:"generation,omitempty"`
}

func (f Filters) empty() bool {
	return f.Type == "" && f.Generation == ""
}

// Query selects one page of the Pokédex.
type Query struct {
	Offset  int
	Limit   int
	Filters Filters
	SortKey SortKey
	SortDir SortDirection
}

func (q Query) normalize() (Query, error) {
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	if err := checkWindow(q.Offset, q.Limit); err != nil {
		return q, err
	}
	key, err := ParseSortKey(string(q.SortKey))
	if err != nil {
		return q, err
	}
	q.SortKey = key
	switch strings.ToLower(string(q.SortDir)) {
	case "", string(Asc):
		q.SortDir = Asc
	case string(Desc):
		q.SortDir = Desc
	default:
		return q, fmt.Errorf("unknown sort direction %q", q.SortDir)
	}
	q.Filters.Type = strings.ToLower(strings.TrimSpace(q.Filters.Type))
	q.Filters.Generation = strings.ToLower(strings.TrimSpace(q.Filters.Generation))
	return q, nil
}

// CacheKey names the page q selects in the page store.
func (q Query) CacheKey() string {
	return fmt.Sprintf("pokedex:page:%d:%d:%s:%s:%s:%s",
		q.Offset, q.Limit, orAll(q.Filters.Type), orAll(q.Filters.Generation), q.SortKey, q.SortDir)
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}

// Browse returns the page q selects. Sorting applies within the page.
func (s *Service) Browse(ctx context.Context, q Query) (ListPage, error) {
	q, err := q.normalize()
	if err != nil {
		return ListPage{}, err
	}
	return s.page(ctx, q.CacheKey(), func(ctx context.Context) (ListPage, error) {
		var (
			p   ListPage
			err error
		)
		if q.Filters.empty() {
			p, err = s.ListPage(ctx, q.Offset, q.Limit)
		} else {
			p, err = s.filtered(ctx, q)
		}
		if err != nil {
			return ListPage{}, err
		}
		p.Results = Sorted(p.Results, q.SortKey, q.SortDir)
		return p, nil
	})
}

// filtered pages through the names matching every filter.
func (s *Service) filtered(ctx context.Context, q Query) (ListPage, error) {
	var byType, byGen []string
	g, gctx := errgroup.WithContext(ctx)
	if q.Filters.Type != "" {
		g.Go(func() (err error) {
			byType, err = s.NamesByType(gctx, q.Filters.Type)
			return err
		})
	}
	if q.Filters.Generation != "" {
		g.Go(func() (err error) {
			byGen, err = s.NamesByGeneration(gctx, q.Filters.Generation)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return ListPage{}, err
	}

	var names []string
	switch {
	case q.Filters.Type != "" && q.Filters.Generation != "":
		names = intersect(byGen, byType)
	case q.Filters.Type != "":
		names = byType
	default:
		names = byGen
	}

	total := len(names)
	start := min(q.Offset, total)
	end := min(q.Offset+q.Limit, total)
	results, err := s.summaries(ctx, names[start:end])
	if err != nil {
		return ListPage{}, err
	}

	p := ListPage{Count: total, Results: results}
	if next := q.Offset + q.Limit; next < total {
		p.NextOffset = &next
	}
	if prev := q.Offset - q.Limit; prev >= 0 {
		p.PrevOffset = &prev
	}
	return p, nil
}

// intersect keeps the names of a that also appear in b, in a's order.
func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, n := range b {
		set[n] = struct{}{}
	}
	out := make([]string, 0, min(len(a), len(b)))
	for _, n := range a {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Sorted returns a stably sorted copy of results.
func Sorted(results []Summary, key SortKey, dir SortDirection) []Summary {
	out := slices.Clone(results)
	slices.SortStableFunc(out, func(a, b Summary) int {
		c := compareBy(a, b, key)
		if dir == Desc {
			return -c
		}
		return c
	})
	return out
}

func compareBy(a, b Summary, key SortKey) int {
	switch key {
	case SortName:
		return strings.Compare(a.Name, b.Name)
	case SortHP:
		return cmp.Compare(a.Stats.HP, b.Stats.HP)
	case SortAttack:
		return cmp.Compare(a.Stats.Attack, b.Stats.Attack)
	case SortDefense:
		return cmp.Compare(a.Stats.Defense, b.Stats.Defense)
	case SortSpecialAttack:
		return cmp.Compare(a.Stats.SpecialAttack, b.Stats.SpecialAttack)
	case SortSpecialDefense:
		return cmp.Compare(a.Stats.SpecialDefense, b.Stats.SpecialDefense)
	case SortSpeed:
		return cmp.Compare(a.Stats.Speed, b.Stats.Speed)
	default:
		return cmp.Compare(a.ID, b.ID)
	}
}

// Suggest returns up to MaxSuggestions names for query: prefix matches
// first, then substring matches.
func (s *Service) Suggest(ctx context.Context, query string) (Suggestions, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	out := Suggestions{Query: query, Names: []string{}}
	if query == "" {
		return out, nil
	}
	names, err := s.NameIndex(ctx)
	if err != nil {
		return out, err
	}
	out.Names, out.Exact = Suggest(names, query)
	return out, nil
}

// Suggest ranks names against a lowercase query.
func Suggest(names []string, query string) (matches []string, exact bool) {
	matches = []string{}
	for _, n := range names {
		if len(matches) < MaxSuggestions && strings.HasPrefix(n, query) {
			matches = append(matches, n)
		}
	}
	if len(matches) < MaxSuggestions {
		for _, n := range names {
			if !strings.HasPrefix(n, query) && strings.Contains(n, query) {
				matches = append(matches, n)
				if len(matches) == MaxSuggestions {
					break
				}
			}
		}
	}
	return matches, slices.Contains(matches, query)
}
