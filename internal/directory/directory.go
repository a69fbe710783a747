// Package directory holds the client and mining-site registry the ledger
// scopes to. Settlement records always belong to a (client, site) pair.
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidName = errors.New("name is required")
)

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Site struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Service interface {
	CreateClient(ctx context.Context, name, phone, notes string, actorID int64) (Client, error)
	GetClient(ctx context.Context, id int64) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	CreateSite(ctx context.Context, name, location string, actorID int64) (Site, error)
	GetSite(ctx context.Context, id int64) (Site, error)
	ListSites(ctx context.Context) ([]Site, error)
}

type InMemory struct {
	mu      sync.RWMutex
	clients map[int64]*Client
	sites   map[int64]*Site
	seq     int64
}

var _ Service = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		clients: make(map[int64]*Client),
		sites:   make(map[int64]*Site),
	}
}

func (s *InMemory) CreateClient(ctx context.Context, name, phone, notes string, actorID int64) (Client, error) {
	if strings.TrimSpace(name) == "" {
		return Client{}, ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c := &Client{ID: s.seq, Name: name, Phone: phone, Notes: notes, CreatedAt: time.Now().UTC()}
	s.clients[c.ID] = c
	return *c, nil
}

func (s *InMemory) GetClient(ctx context.Context, id int64) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) ListClients(ctx context.Context) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Client, 0, len(s.clients))
	for _, c := range s.clients {
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemory) CreateSite(ctx context.Context, name, location string, actorID int64) (Site, error) {
	if strings.TrimSpace(name) == "" {
		return Site{}, ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	site := &Site{ID: s.seq, Name: name, Location: location, CreatedAt: time.Now().UTC()}
	s.sites[site.ID] = site
	return *site, nil
}

func (s *InMemory) GetSite(ctx context.Context, id int64) (Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return Site{}, ErrNotFound
	}
	return *site, nil
}

func (s *InMemory) ListSites(ctx context.Context) ([]Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Site, 0, len(s.sites))
	for _, site := range s.sites {
		res = append(res, *site)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
