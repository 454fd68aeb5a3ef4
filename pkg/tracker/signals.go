package tracker

import "sync"

// IdentitySource tells the tracker who is signed in. An empty user id means
// signed out, which is a hard gate: no enqueue, no flush, and queued state is
// cleared so tracking data cannot leak across identities on a shared device.
type IdentitySource interface {
	CurrentUserID() string
	// Subscribe registers fn for auth-state changes and returns an
	// unsubscribe function.
	Subscribe(fn func(userID string)) (cancel func())
}

// ConnectivitySource reports whether the device is online. The tracker
// flushes immediately on the offline-to-online transition.
type ConnectivitySource interface {
	Online() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// IdentityState is a settable IdentitySource for embedding applications and
// tests. Set("") signals logout.
type IdentityState struct {
	mu     sync.Mutex
	userID string
	subs   map[int]func(string)
	nextID int
}

func NewIdentityState(userID string) *IdentityState {
	return &IdentityState{userID: userID, subs: make(map[int]func(string))}
}

func (s *IdentityState) CurrentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *IdentityState) Set(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(userID)
	}
}

func (s *IdentityState) Subscribe(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// ConnectivityState is a settable ConnectivitySource.
type ConnectivityState struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func NewConnectivityState(online bool) *ConnectivityState {
	return &ConnectivityState{online: online, subs: make(map[int]func(bool))}
}

func (s *ConnectivityState) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *ConnectivityState) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (s *ConnectivityState) Subscribe(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
