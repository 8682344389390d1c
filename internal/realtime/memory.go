package realtime

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the bundled dev
// stack. Each subscriber drains its own ordered queue, so a slow callback
// never blocks a publisher or reorders deliveries.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	subs   map[string]map[int]*memorySub
	nextID int
}

type memorySub struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

func newMemorySub() *memorySub {
	sub := &memorySub{}
	sub.cond = sync.NewCond(&sub.mu)
	return sub
}

func (s *memorySub) push(value []byte) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, value)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *memorySub) next() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	value := s.queue[0]
	s.queue = s.queue[1:]
	return value, true
}

func (s *memorySub) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		subs:   make(map[string]map[int]*memorySub),
	}
}

func (m *MemoryStore) Set(_ context.Context, path string, value []byte) error {
	m.mu.Lock()
	m.values[path] = append([]byte(nil), value...)
	m.notifyLocked(path, m.values[path])
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[path]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	delete(m.values, path)
	m.notifyLocked(path, nil)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Subscribe(path string, fn func(value []byte)) (func(), error) {
	sub := newMemorySub()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]*memorySub)
	}
	m.subs[path][id] = sub
	// Seed with the value present at subscription time.
	if value, ok := m.values[path]; ok {
		sub.push(append([]byte(nil), value...))
	} else {
		sub.push(nil)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			value, ok := sub.next()
			if !ok {
				return
			}
			fn(value)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[path], id)
			m.mu.Unlock()
			sub.close()
			<-done
		})
	}
	return cancel, nil
}

func (m *MemoryStore) notifyLocked(path string, value []byte) {
	for _, sub := range m.subs[path] {
		if value == nil {
			sub.push(nil)
			continue
		}
		sub.push(append([]byte(nil), value...))
	}
}
