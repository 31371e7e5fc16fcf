package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Manager owns a set of constructed backends keyed by name. Two managers
// are typically built per process, one for generation and one for
// embeddings, from the corresponding provider lists in config.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

func NewManager(refs []ProviderRef) (*Manager, error) {
	m := &Manager{providers: make(map[string]Provider)}
	for _, ref := range refs {
		p, err := build(ref)
		if err != nil {
			return nil, err
		}
		if _, dup := m.providers[ref.Name]; dup {
			continue
		}
		m.providers[ref.Name] = p
		m.order = append(m.order, ref.Name)
	}
	if len(m.order) == 0 {
		m.providers["mock"] = NewMockProvider("")
		m.order = []string{"mock"}
	}
	return m, nil
}

// NewManagerFromList parses a pipe-separated spec and builds the backends.
func NewManagerFromList(raw string) (*Manager, error) {
	return NewManager(ParseProviderList(raw))
}

func build(ref ProviderRef) (Provider, error) {
	switch ref.Name {
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "mock":
		return NewMockProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", ref.Name)
	}
}

func (m *Manager) ByName(name string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

// Default returns the first configured backend.
func (m *Manager) Default() Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[m.order[0]]
}

func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.providers[name]
	return ok
}

func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]string(nil), m.order...)
	sort.Strings(out)
	return out
}

// Register installs or replaces a backend, mainly for tests.
func (m *Manager) Register(name string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[name]; !ok {
		m.order = append(m.order, name)
	}
	m.providers[name] = p
}
