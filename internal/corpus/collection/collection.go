// Package collection groups an owner's documents into named sets. A
// collection only references documents by id; the corpus index stays the
// owner of the documents themselves, and membership of a deleted document is
// dropped through Forget.
package collection

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

const (
	maxNameLength        = 200
	maxDescriptionLength = 2000
)

// Collection is a point-in-time copy. DocumentIDs are in the order the
// documents were added.
type Collection struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	DocumentIDs []string  `json:"document_ids"`
}

// New validates the fields and returns an empty collection with a fresh id.
func New(ownerID, name, description string) (*Collection, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	switch {
	case ownerID == "":
		return nil, apperrors.Validation("owner id is required")
	case name == "":
		return nil, apperrors.Validation("collection name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		return nil, apperrors.Validation("collection name exceeds %d characters", maxNameLength)
	case utf8.RuneCountInString(description) > maxDescriptionLength:
		return nil, apperrors.Validation("collection description exceeds %d characters", maxDescriptionLength)
	}
	return &Collection{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		DocumentIDs: []string{},
	}, nil
}

type entry struct {
	info    Collection
	members []string
	index   map[string]struct{}
}

func (e *entry) snapshot() *Collection {
	c := e.info
	c.DocumentIDs = slices.Clone(e.members)
	return &c
}

// Manager holds every collection in memory. It is safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	collections map[string]*entry
}

func NewManager() *Manager {
	return &Manager{collections: make(map[string]*entry)}
}

// Put adds c, including any DocumentIDs it carries. An existing collection
// with the same id is a duplicate.
func (m *Manager) Put(c *Collection) error {
	e := &entry{
		info:    *c,
		members: make([]string, 0, len(c.DocumentIDs)),
		index:   make(map[string]struct{}, len(c.DocumentIDs)),
	}
	e.info.DocumentIDs = nil
	for _, id := range c.DocumentIDs {
		if _, ok := e.index[id]; ok {
			continue
		}
		e.index[id] = struct{}{}
		e.members = append(e.members, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[c.ID]; ok {
		return apperrors.Duplicate("collection %s already exists", c.ID)
	}
	m.collections[c.ID] = e
	return nil
}

func (m *Manager) Get(id string) (*Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.collections[id]
	if !ok {
		return nil, apperrors.NotFound("collection %s not found", id)
	}
	return e.snapshot(), nil
}

// List returns ownerID's collections, newest first.
func (m *Manager) List(ownerID string) []*Collection {
	m.mu.RLock()
	out := make([]*Collection, 0)
	for _, e := range m.collections {
		if e.info.OwnerID == ownerID {
			out = append(out, e.snapshot())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Collection) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[id]; !ok {
		return apperrors.NotFound("collection %s not found", id)
	}
	delete(m.collections, id)
	return nil
}

// Add makes documentID a member. Adding a member twice is a no-op; the
// result reports whether membership changed.
func (m *Manager) Add(id, documentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.collections[id]
	if !ok {
		return false, apperrors.NotFound("collection %s not found", id)
	}
	if _, ok := e.index[documentID]; ok {
		return false, nil
	}
	e.index[documentID] = struct{}{}
	e.members = append(e.members, documentID)
	return true, nil
}

// Remove drops documentID from the collection. Removing a non-member is a
// no-op; the result reports whether membership changed.
func (m *Manager) Remove(id, documentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.collections[id]
	if !ok {
		return false, apperrors.NotFound("collection %s not found", id)
	}
	return e.remove(documentID), nil
}

// Forget drops documentID from every collection and returns how many
// collections held it.
func (m *Manager) Forget(documentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.collections {
		if e.remove(documentID) {
			n++
		}
	}
	return n
}

// Contains reports whether documentID is a member of collection id.
func (m *Manager) Contains(id, documentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.collections[id]
	if !ok {
		return false, apperrors.NotFound("collection %s not found", id)
	}
	_, member := e.index[documentID]
	return member, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections)
}

func (e *entry) remove(documentID string) bool {
	if _, ok := e.index[documentID]; !ok {
		return false
	}
	delete(e.index, documentID)
	e.members = slices.DeleteFunc(e.members, func(id string) bool { return id == documentID })
	return true
}
