package mockapi

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rflorenc/avi-test-automation/internal/models"
)

// Object kinds served under /api/{kind}.
const (
	KindTenant         = "tenant"
	KindVirtualService = "virtualservice"
	KindServiceEngine  = "serviceengine"
)

// Store is an in-memory thread-safe controller state.
type Store struct {
	mu      sync.RWMutex
	users   map[string]string // username → password
	tokens  map[string]string // token → username
	objects map[string][]models.Resource
	updates int
}

// NewStore creates a store seeded from a fixture.
func NewStore(f *Fixture) *Store {
	s := &Store{
		users:   make(map[string]string),
		tokens:  make(map[string]string),
		objects: make(map[string][]models.Resource),
	}
	if f == nil {
		return s
	}
	for _, u := range f.Users {
		s.users[u.Username] = u.Password
	}
	s.seed(KindTenant, f.Tenants)
	s.seed(KindVirtualService, f.VirtualServices)
	s.seed(KindServiceEngine, f.ServiceEngines)
	return s
}

func (s *Store) seed(kind string, items []models.Resource) {
	for _, item := range items {
		s.Add(kind, item)
	}
}

// Add stores a copy of obj, assigning a uuid if it has none, and returns it.
func (s *Store) Add(kind string, obj models.Resource) models.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := clone(obj)
	if c.UUID() == "" {
		c["uuid"] = kind + "-" + uuid.New().String()
	}
	s.objects[kind] = append(s.objects[kind], c)
	return clone(c)
}

// Register adds a user. It returns false if the username is taken.
func (s *Store) Register(username, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return false
	}
	s.users[username] = password
	return true
}

// Login checks credentials and issues a new token.
func (s *Store) Login(username, password string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pw, ok := s.users[username]; !ok || pw != password {
		return "", false
	}
	token := uuid.New().String()
	s.tokens[token] = username
	return token, true
}

// ValidToken reports whether token was issued by Login.
func (s *Store) ValidToken(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

// List returns copies of all objects of a kind, in insertion order.
func (s *Store) List(kind string) []models.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Resource, 0, len(s.objects[kind]))
	for _, obj := range s.objects[kind] {
		result = append(result, clone(obj))
	}
	return result
}

// Get returns an object by uuid.
func (s *Store) Get(kind, id string) (models.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obj := range s.objects[kind] {
		if obj.UUID() == id {
			return clone(obj), true
		}
	}
	return nil, false
}

// Update merges patch into the object with the given uuid. The uuid itself
// cannot be changed.
func (s *Store) Update(kind, id string, patch models.Resource) (models.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.objects[kind] {
		if obj.UUID() != id {
			continue
		}
		for k, v := range patch {
			if k == "uuid" {
				continue
			}
			obj[k] = v
		}
		s.updates++
		return clone(obj), true
	}
	return nil, false
}

// Updates returns the number of successful updates.
func (s *Store) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

func clone(r models.Resource) models.Resource {
	c := make(models.Resource, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
