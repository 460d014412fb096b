package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/formdispatch/job"
)

// Client is the producer handle for one job queue.
type Client interface {
	// Name returns the job name this client serves.
	Name() string

	// AddJob submits a run object. A nil error means the queue accepted it.
	AddJob(ctx context.Context, run *job.RunObject) error

	// Ready blocks until the queue can accept jobs.
	Ready(ctx context.Context) error

	// Close releases the client's connections.
	Close(ctx context.Context) error
}

// Set maps job names to queue clients. It is safe for concurrent use.
type Set struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewSet creates a set holding the given clients.
func NewSet(clients ...Client) *Set {
	s := &Set{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		s.Add(c)
	}
	return s
}

// Add registers c under c.Name(), replacing any previous client.
func (s *Set) Add(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.Name()] = c
}

// Get returns the client for a job name.
// Returns false if the job is unknown.
func (s *Set) Get(name string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[name]
	return c, ok
}

// Names returns all registered job names, sorted.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadyAll waits for every client to become ready and fails on the first
// client that cannot.
func (s *Set) ReadyAll(ctx context.Context) error {
	for _, name := range s.Names() {
		c, _ := s.Get(name)
		if err := c.Ready(ctx); err != nil {
			return fmt.Errorf("queue %q not ready: %w", name, err)
		}
	}
	return nil
}

// CloseAll closes every client and joins their errors.
func (s *Set) CloseAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.Names() {
		c, _ := s.Get(name)
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close queue %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
