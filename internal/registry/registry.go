// Package registry implements the pipeline's service locator (C8): an
// in-memory directory of named source adapters, LLM clients, and the store.
// Rather than a package-level global, this registry is an instance a caller
// builds and wires explicitly, since the discovery pipeline runs as a single
// process rather than a set of services each registering themselves from
// init().
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/llm"
	"github.com/foundersignal/pipeline/internal/store"
)

// Registry holds the wired scrapers, LLM clients, and store for a discovery
// run. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]adapters.Adapter
	llms     map[string]*llm.Client
	store    *store.Store
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		scrapers: make(map[string]adapters.Adapter),
		llms:     make(map[string]*llm.Client),
	}
}

// RegisterScraper adds a source adapter under its own Name().
func (r *Registry) RegisterScraper(a adapters.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[a.Name()] = a
}

// RegisterLLM adds an LLM client under a provider name.
func (r *Registry) RegisterLLM(name string, c *llm.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llms[name] = c
}

// SetStore wires the shared store instance.
func (r *Registry) SetStore(s *store.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
}

// GetScraper looks up a source adapter by name.
func (r *Registry) GetScraper(name string) (adapters.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.scrapers[name]
	if !ok {
		return nil, r.unknownScraperError(name)
	}
	return a, nil
}

// GetLLM looks up an LLM client by provider name.
func (r *Registry) GetLLM(name string) (*llm.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.llms[name]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q; available: %s", name, strings.Join(r.llmNamesLocked(), ", "))
	}
	return c, nil
}

// GetStore returns the wired store, or an error if none has been set.
func (r *Registry) GetStore() (*store.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.store == nil {
		return nil, fmt.Errorf("no store registered")
	}
	return r.store, nil
}

// ListScraperNames returns every registered adapter name, sorted.
func (r *Registry) ListScraperNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scraperNamesLocked()
}

// GetAllScrapers returns every registered adapter, sorted by name.
func (r *Registry) GetAllScrapers() []adapters.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.scraperNamesLocked()
	out := make([]adapters.Adapter, 0, len(names))
	for _, n := range names {
		out = append(out, r.scrapers[n])
	}
	return out
}

// GetScrapersWithCapability returns every registered adapter whose
// capability bitset includes cap, sorted by name.
func (r *Registry) GetScrapersWithCapability(cap adapters.Capability) []adapters.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.scraperNamesLocked()
	out := make([]adapters.Adapter, 0, len(names))
	for _, n := range names {
		a := r.scrapers[n]
		if a.Capabilities().Has(cap) {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) scraperNamesLocked() []string {
	names := make([]string, 0, len(r.scrapers))
	for n := range r.scrapers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) llmNamesLocked() []string {
	names := make([]string, 0, len(r.llms))
	for n := range r.llms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) unknownScraperError(name string) error {
	return fmt.Errorf("unknown scraper %q; available: %s", name, strings.Join(r.scraperNamesLocked(), ", "))
}
