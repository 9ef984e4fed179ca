// Package pokeclient is a client-side data-access layer for JSON REST APIs:
//
//   - Concurrency limiting with a FIFO wait queue (Limiter)
//   - In-memory cache store with fresh / stale / expired entries and per-key subscribers (Store)
//   - Retries with exponential backoff + jitter and per-attempt timeouts (Engine)
//   - Request de-duplication and stale-while-revalidate (Client)
//   - Prometheus metrics and zap structured logging
//
// Nothing is global: a Store, Limiter or MetricsCollector is shared by
// passing the same instance to several clients.
//
// Typical usage:
//
//	client := pokeclient.New(
//	    pokeclient.WithBaseURL("https://pokeapi.co/api/v2"),
//	    pokeclient.WithMaxConcurrent(6),
//	    pokeclient.WithDefaults(pokeclient.Policy{
//	        Timeout:    8 * time.Second,
//	        Retries:    2,
//	        RetryDelay: 400 * time.Millisecond,
//	        CacheTTL:   5 * time.Minute,
//	        StaleTTL:   time.Hour,
//	        Dedupe:     true,
//	        SWR:        true,
//	    }),
//	)
//	p, err := pokeclient.GetJSON[Pokemon](ctx, client, "/pokemon/pikachu")
//
// Only GET requests use the cache. 5xx, 429, transport failures and attempt
// timeouts are retried; cancellation of the caller's context never is.
package pokeclient
