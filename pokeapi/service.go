package pokeapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ivnvaldz7/pokeclient"
)

const (
	BaseURL  = "https://pokeapi.co/api/v2"
	CacheTTL = 5 * time.Minute
	StaleTTL = 60 * time.Minute

	// NameIndexLimit covers every Pokémon PokeAPI lists.
	NameIndexLimit = 2000
)

// Policy is the request policy the pokedex uses against PokeAPI.
func Policy() pokeclient.Policy {
	return pokeclient.Policy{
		Timeout:    8 * time.Second,
		Retries:    2,
		RetryDelay: 400 * time.Millisecond,
		CacheTTL:   CacheTTL,
		StaleTTL:   StaleTTL,
		Dedupe:     true,
		SWR:        true,
	}
}

// Service reads PokeAPI through a pokeclient.Client. Assembled pages live in
// their own store so a page hit costs no per-Pokémon lookups.
type Service struct {
	client   *pokeclient.Client
	pages    *pokeclient.Store
	builds   singleflight.Group
	cacheTTL time.Duration
	staleTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

type ServiceOption func(*Service)

// WithPageStore sets the store assembled pages are cached in.
func WithPageStore(store *pokeclient.Store) ServiceOption {
	return func(s *Service) {
		s.pages = store
	}
}

// WithPageTTL sets how long assembled pages stay fresh and stale.
func WithPageTTL(cacheTTL, staleTTL time.Duration) ServiceOption {
	return func(s *Service) {
		s.cacheTTL = cacheTTL
		s.staleTTL = staleTTL
	}
}

func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(client *pokeclient.Client, opts ...ServiceOption) *Service {
	s := &Service{
		client:   client,
		pages:    pokeclient.NewStore(),
		cacheTTL: CacheTTL,
		staleTTL: StaleTTL,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pages == nil {
		s.pages = pokeclient.NewStore()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Client returns the underlying client.
func (s *Service) Client() *pokeclient.Client {
	return s.client
}

// Pages returns the store of assembled pages.
func (s *Service) Pages() *pokeclient.Store {
	return s.pages
}

func get[T validator](ctx context.Context, s *Service, path, key string, opts ...pokeclient.RequestOption) (T, error) {
	all := make([]pokeclient.RequestOption, 0, len(opts)+2)
	all = append(all, pokeclient.WithCacheKey(key), pokeclient.WithParser(parser[T]()))
	all = append(all, opts...)
	return pokeclient.GetJSON[T](ctx, s.client, path, all...)
}

// PokemonByName fetches one Pokémon by name or numeric id.
func (s *Service) PokemonByName(ctx context.Context, nameOrID string) (Summary, error) {
	nameOrID = strings.ToLower(strings.TrimSpace(nameOrID))
	if nameOrID == "" {
		return Summary{}, errors.New("pokemon name is required")
	}
	p, err := get[Pokemon](ctx, s, "/pokemon/"+url.PathEscape(nameOrID), PokemonKey(nameOrID))
	if err != nil {
		return Summary{}, err
	}
	return MapPokemon(p), nil
}

// PrefetchPokemon warms the cache for one Pokémon.
func (s *Service) PrefetchPokemon(ctx context.Context, nameOrID string) error {
	_, err := s.PokemonByName(ctx, nameOrID)
	return err
}

// ListPage returns the page at offset with every result's details.
func (s *Service) ListPage(ctx context.Context, offset, limit int) (ListPage, error) {
	if err := checkWindow(offset, limit); err != nil {
		return ListPage{}, err
	}
	key := fmt.Sprintf("pokedex:list:%d:%d", offset, limit)
	return s.page(ctx, key, func(ctx context.Context) (ListPage, error) {
		list, err := get[PokemonList](ctx, s, "/pokemon", fmt.Sprintf("pokemon:list:%d:%d", offset, limit),
			pokeclient.WithQueryParam("offset", offset),
			pokeclient.WithQueryParam("limit", limit),
		)
		if err != nil {
			return ListPage{}, err
		}
		names := make([]string, len(list.Results))
		for i, r := range list.Results {
			names[i] = r.Name
		}
		results, err := s.summaries(ctx, names)
		if err != nil {
			return ListPage{}, err
		}
		return MapListPage(list, results), nil
	})
}

// PrefetchListPage warms the cache for the page at offset.
func (s *Service) PrefetchListPage(ctx context.Context, offset, limit int) error {
	_, err := s.ListPage(ctx, offset, limit)
	return err
}

// NameIndex lists every Pokémon name in PokeAPI order.
func (s *Service) NameIndex(ctx context.Context) ([]string, error) {
	list, err := get[PokemonList](ctx, s, "/pokemon", "pokemon:names:index",
		pokeclient.WithQueryParam("offset", 0),
		pokeclient.WithQueryParam("limit", NameIndexLimit),
	)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(list.Results))
	for i, r := range list.Results {
		names[i] = r.Name
	}
	return names, nil
}

func (s *Service) Types(ctx context.Context) ([]NamedID, error) {
	l, err := get[TypeList](ctx, s, "/type", "pokemon:types")
	if err != nil {
		return nil, err
	}
	return MapNamedIDs(l.Results), nil
}

func (s *Service) Generations(ctx context.Context) ([]NamedID, error) {
	l, err := get[GenerationList](ctx, s, "/generation", "pokemon:generations")
	if err != nil {
		return nil, err
	}
	return MapNamedIDs(l.Results), nil
}

// NamesByType lists the Pokémon of a type.
func (s *Service) NamesByType(ctx context.Context, typeName string) ([]string, error) {
	typeName = strings.ToLower(typeName)
	d, err := get[TypeDetail](ctx, s, "/type/"+url.PathEscape(typeName), "pokemon:type:"+typeName)
	if err != nil {
		return nil, err
	}
	return TypeDetailNames(d), nil
}

// NamesByGeneration lists the species introduced in a generation.
func (s *Service) NamesByGeneration(ctx context.Context, generation string) ([]string, error) {
	generation = strings.ToLower(generation)
	d, err := get[GenerationDetail](ctx, s, "/generation/"+url.PathEscape(generation), "pokemon:generation:"+generation)
	if err != nil {
		return nil, err
	}
	return GenerationDetailNames(d), nil
}

// PokemonKey is the cache key of one Pokémon.
func PokemonKey(nameOrID string) string {
	return "pokemon:" + nameOrID
}

// summaries fetches details for names concurrently, keeping their order.
// The client's limiter bounds how many reach the network at once.
func (s *Service) summaries(ctx context.Context, names []string) ([]Summary, error) {
	out := make([]Summary, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			sum, err := s.PokemonByName(gctx, name)
			if err != nil {
				return fmt.Errorf("pokemon %q: %w", name, err)
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// page serves key from the page store while fresh and otherwise builds it
// once for all concurrent callers. The build outlives a caller that leaves.
func (s *Service) page(ctx context.Context, key string, build func(context.Context) (ListPage, error)) (ListPage, error) {
	if p, ok := s.cachedPage(key); ok {
		return p, nil
	}

	ch := s.builds.DoChan(key, func() (interface{}, error) {
		start := s.now()
		p, err := build(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.Debug("page build failed", zap.String("key", key), zap.Error(err))
			return nil, err
		}
		if s.cacheTTL > 0 {
			s.pages.Set(key, pokeclient.NewEntry(p, s.now(), s.cacheTTL, s.staleTTL))
		}
		s.logger.Debug("page built",
			zap.String("key", key),
			zap.Int("results", len(p.Results)),
			zap.Duration("took", s.now().Sub(start)))
		return p, nil
	})

	select {
	case <-ctx.Done():
		return ListPage{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return ListPage{}, r.Err
		}
		return r.Val.(ListPage), nil
	}
}

func (s *Service) cachedPage(key string) (ListPage, bool) {
	e, ok := s.pages.Get(key)
	if !ok || e.State(s.now()) != pokeclient.Fresh {
		return ListPage{}, false
	}
	p, ok := e.Data.(ListPage)
	return p, ok
}

func checkWindow(offset, limit int) error {
	if offset < 0 {
		return fmt.Errorf("offset must be non-negative, got %d", offset)
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	return nil
}
