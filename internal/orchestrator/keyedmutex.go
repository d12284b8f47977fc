package orchestrator

import "sync"

// keyedMutex serialises work per key. Entries are reference-counted and
// dropped once no goroutine holds or waits on them, so the map only grows
// with the number of keys in flight.
type keyedMutex struct {
	// mu protects locks.
	mu sync.Mutex
	// locks maps a key to its lock and waiter count.
	locks map[string]*refLock
}

// refLock is one key's mutex plus the number of goroutines using it.
type refLock struct {
	mu   sync.Mutex
	refs int
}

// newKeyedMutex returns an empty keyedMutex.
func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns the function that releases it.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of live keys.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// documentKey is the lock key for one tenant's copy of a document.
func documentKey(tenantID, documentID string) string {
	return "doc\x00" + tenantID + "\x00" + documentID
}

// sessionKey is the lock key for one conversation.
func sessionKey(tenantID, sessionID string) string {
	return "session\x00" + conversationKey(tenantID, sessionID)
}

// fileLockKey is the lock key for a stored file shared by every tenant.
func fileLockKey(documentID string) string {
	return "file\x00" + documentID
}
