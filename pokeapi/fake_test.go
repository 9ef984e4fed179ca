package pokeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ivnvaldz7/pokeclient"
)

type fakeMon struct {
	id      int
	name    string
	types   []string
	hp      int
	attack  int
	speed   int
	artwork bool
}

var fakeDex = []fakeMon{
	{1, "bulbasaur", []string{"grass", "poison"}, 45, 49, 45, true},
	{4, "charmander", []string{"fire"}, 39, 52, 65, true},
	{7, "squirtle", []string{"water"}, 44, 48, 43, true},
	{25, "pikachu", []string{"electric"}, 35, 55, 90, true},
	{43, "oddish", []string{"grass", "poison"}, 45, 50, 30, false},
	{152, "chikorita", []string{"grass"}, 45, 49, 45, true},
	{172, "pichu", []string{"electric"}, 20, 40, 60, true},
}

var fakeGenerations = map[string][]string{
	"generation-i":  {"bulbasaur", "charmander", "squirtle", "pikachu", "oddish"},
	"generation-ii": {"chikorita", "pichu"},
}

type fakeAPI struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string]int
	delay time.Duration
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{calls: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pokemon", f.list)
	mux.HandleFunc("GET /pokemon/{name}", f.pokemon)
	mux.HandleFunc("GET /type", f.types)
	mux.HandleFunc("GET /type/{name}", f.typeDetail)
	mux.HandleFunc("GET /generation", f.generations)
	mux.HandleFunc("GET /generation/{name}", f.generationDetail)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		delay := f.delay
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func base(r *http.Request) string {
	return "http://" + r.Host
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) list(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = 20
	}
	total := len(fakeDex)
	start, end := min(offset, total), min(offset+limit, total)

	results := []map[string]string{}
	for _, m := range fakeDex[start:end] {
		results = append(results, map[string]string{"name": m.name, "url": fmt.Sprintf("%s/pokemon/%d/", base(r), m.id)})
	}
	body := map[string]interface{}{"count": total, "next": nil, "previous": nil, "results": results}
	if end < total {
		body["next"] = fmt.Sprintf("%s/pokemon?offset=%d&limit=%d", base(r), end, limit)
	}
	if offset > 0 {
		body["previous"] = fmt.Sprintf("%s/pokemon?offset=%d&limit=%d", base(r), max(offset-limit, 0), limit)
	}
	writeJSON(w, body)
}

func (f *fakeAPI) pokemon(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, m := range fakeDex {
		if m.name != name && strconv.Itoa(m.id) != name {
			continue
		}
		types := []map[string]interface{}{}
		// Reverse slot order to check the mapper sorts by slot.
		for i := len(m.types) - 1; i >= 0; i-- {
			types = append(types, map[string]interface{}{
				"slot": i + 1,
				"type": map[string]string{"name": m.types[i], "url": base(r) + "/type/" + m.types[i] + "/"},
			})
		}
		stat := func(name string, v int) map[string]interface{} {
			return map[string]interface{}{"base_stat": v, "stat": map[string]string{"name": name, "url": base(r) + "/stat/" + name + "/"}}
		}
		other := map[string]interface{}{
			"dream_world": map[string]interface{}{"front_default": fmt.Sprintf("%s/sprites/dream/%d.svg", base(r), m.id)},
		}
		if m.artwork {
			other["official-artwork"] = map[string]interface{}{"front_default": fmt.Sprintf("%s/sprites/art/%d.png", base(r), m.id)}
		}
		writeJSON(w, map[string]interface{}{
			"id":      m.id,
			"name":    m.name,
			"height":  m.id,
			"weight":  m.id * 10,
			"types":   types,
			"stats":   []interface{}{stat("hp", m.hp), stat("attack", m.attack), stat("speed", m.speed)},
			"sprites": map[string]interface{}{"other": other},
		})
		return
	}
	http.Error(w, `{"detail":"Not found."}`, http.StatusNotFound)
}

func (f *fakeAPI) types(w http.ResponseWriter, r *http.Request) {
	results := []map[string]string{}
	for i, t := range []string{"grass", "poison", "fire", "water", "electric"} {
		results = append(results, map[string]string{"name": t, "url": fmt.Sprintf("%s/type/%d/", base(r), i+1)})
	}
	writeJSON(w, map[string]interface{}{"results": results})
}

func (f *fakeAPI) typeDetail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	pokemon := []map[string]interface{}{}
	for _, m := range fakeDex {
		for _, t := range m.types {
			if t == name {
				pokemon = append(pokemon, map[string]interface{}{
					"pokemon": map[string]string{"name": m.name, "url": fmt.Sprintf("%s/pokemon/%d/", base(r), m.id)},
				})
			}
		}
	}
	if len(pokemon) == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"id": 1, "name": name, "pokemon": pokemon})
}

func (f *fakeAPI) generations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"results": []map[string]string{
		{"name": "generation-i", "url": base(r) + "/generation/1/"},
		{"name": "generation-ii", "url": base(r) + "/generation/2/"},
	}})
}

func (f *fakeAPI) generationDetail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	names, ok := fakeGenerations[name]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	species := []map[string]string{}
	for _, n := range names {
		species = append(species, map[string]string{"name": n, "url": base(r) + "/pokemon-species/" + n + "/"})
	}
	writeJSON(w, map[string]interface{}{"id": 1, "name": name, "pokemon_species": species})
}

type zeroBackoff struct{}

func (zeroBackoff) Calculate(int, time.Duration) time.Duration { return 0 }

func newTestService(t *testing.T, api *fakeAPI, opts ...ServiceOption) *Service {
	t.Helper()
	client := pokeclient.New(
		pokeclient.WithBaseURL(api.URL),
		pokeclient.WithDefaults(Policy()),
		pokeclient.WithMaxConcurrent(4),
		pokeclient.WithBackoff(zeroBackoff{}),
	)
	if !client.IsValid() {
		t.Fatalf("invalid client: %v", client.ValidationError())
	}
	return NewService(client, opts...)
}
