package job

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps allowed job names to their configs.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]Config),
	}
}

// LoadConfigs builds a registry for the allowed job names. Every allowed
// name must have an entry in raw; zero fields of an entry take the values
// of DefaultConfig. Entries for names that are not allowed are ignored.
func LoadConfigs(allowed []string, raw map[string]Config) (*Registry, error) {
	r := NewRegistry()
	for _, name := range allowed {
		c, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("job: no configuration for allowed job %q", name)
		}
		c = c.withDefaults(name)
		if c.Name != name {
			return nil, fmt.Errorf("job: configuration for %q names %q", name, c.Name)
		}
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and stores a config, replacing any previous config
// with the same name.
func (r *Registry) Register(c Config) error {
	c = c.withDefaults(c.Name)
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[c.Name] = c
	return nil
}

// Get returns the config for the given job name.
// Returns false if the job is not allowed.
func (r *Registry) Get(name string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[name]
	return c, ok
}

// Names returns all registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
