package http

import (
	"container/list"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"kiadas/internal/core"
)

// sessionStore keeps logged-in sessions in memory, keyed by the random
// cookie token. TTL plus size-based eviction bounds memory use.
type sessionStore struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type sessionItem struct {
	token     string
	session   core.Session
	expiresAt time.Time
}

func newSessionStore(maxSize int, ttl time.Duration) *sessionStore {
	return &sessionStore{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// newSessionToken draws a 32-byte random token, hex encoded.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create stores the session under a fresh token and returns the token.
func (st *sessionStore) Create(sess core.Session) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	item := &sessionItem{
		token:     token,
		session:   sess,
		expiresAt: time.Now().Add(st.ttl),
	}
	elem := st.lru.PushFront(item)
	st.items[token] = elem

	// Evict the least recently used session if over capacity
	if st.lru.Len() > st.maxSize {
		if oldest := st.lru.Back(); oldest != nil {
			st.removeElement(oldest)
		}
	}

	return token, nil
}

// Get resolves a token to its session, refreshing its LRU position.
func (st *sessionStore) Get(token string) (core.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	elem, exists := st.items[token]
	if !exists {
		return core.Session{}, false
	}

	item := elem.Value.(*sessionItem)
	if time.Now().After(item.expiresAt) {
		st.removeElement(elem)
		return core.Session{}, false
	}

	st.lru.MoveToFront(elem)
	return item.session, true
}

// Delete removes a session, e.g. on logout.
func (st *sessionStore) Delete(token string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if elem, exists := st.items[token]; exists {
		st.removeElement(elem)
	}
}

func (st *sessionStore) removeElement(elem *list.Element) {
	item := elem.Value.(*sessionItem)
	delete(st.items, item.token)
	st.lru.Remove(elem)
}

// CleanExpired removes all expired sessions and reports how many.
func (st *sessionStore) CleanExpired() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := st.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*sessionItem)
		if now.After(item.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		st.removeElement(elem)
	}

	return len(toRemove)
}
