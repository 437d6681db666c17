package httpapi

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"horse.fit/pagetranslate/internal/engine"
	"horse.fit/pagetranslate/internal/globaltime"
)

var (
	errDocumentNotFound = errors.New("document not found")
	errStoreFull        = errors.New("document store is full")
)

type document struct {
	id       string
	clientID string
	ctrl     *engine.Controller
	created  time.Time

	// running is held for the lifetime of a background translation.
	running *semaphore.Weighted

	mu       sync.Mutex
	lastSeen time.Time
}

func (d *document) touch(now time.Time) {
	d.mu.Lock()
	d.lastSeen = now
	d.mu.Unlock()
}

func (d *document) seen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

func (d *document) busy() bool {
	if !d.running.TryAcquire(1) {
		return true
	}
	d.running.Release(1)
	return d.ctrl.State().Loading
}

// documentStore keeps hosted documents in memory. Idle documents expire after
// ttl; when full, the least recently used idle document is evicted.
type documentStore struct {
	ttl time.Duration
	max int

	mu   sync.Mutex
	docs map[string]*document
}

func newDocumentStore(ttl time.Duration, maxDocs int) *documentStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxDocs <= 0 {
		maxDocs = 256
	}
	return &documentStore{
		ttl:  ttl,
		max:  maxDocs,
		docs: map[string]*document{},
	}
}

func (s *documentStore) add(id string, ctrl *engine.Controller, clientID string) (*document, error) {
	now := globaltime.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	if len(s.docs) >= s.max && !s.evictLocked() {
		return nil, errStoreFull
	}

	doc := &document{
		id:       id,
		clientID: clientID,
		ctrl:     ctrl,
		created:  now,
		running:  semaphore.NewWeighted(1),
		lastSeen: now,
	}
	s.docs[doc.id] = doc
	return doc, nil
}

func (s *documentStore) get(id string) (*document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errDocumentNotFound
	}
	now := globaltime.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	doc, ok := s.docs[id]
	if !ok {
		return nil, errDocumentNotFound
	}
	doc.touch(now)
	return doc, nil
}

func (s *documentStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	return true
}

func (s *documentStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func (s *documentStore) sweepLocked() {
	for id, doc := range s.docs {
		if globaltime.Since(doc.seen()) > s.ttl && !doc.busy() {
			delete(s.docs, id)
		}
	}
}

func (s *documentStore) evictLocked() bool {
	var oldest *document
	for _, doc := range s.docs {
		if doc.busy() {
			continue
		}
		if oldest == nil || doc.seen().Before(oldest.seen()) {
			oldest = doc
		}
	}
	if oldest == nil {
		return false
	}
	delete(s.docs, oldest.id)
	return true
}
