package backend

import (
	"sync"
)

// Listeners is a registry of SessionListeners shared by SessionStore
// implementations. Emit delivers to listeners in registration order; emits
// are serialized so notifications arrive in the order they were produced.
type Listeners struct {
	mu        sync.Mutex
	emitMu    sync.Mutex
	nextID    int
	listeners map[int]SessionListener
	order     []int
}

// Add registers listener and returns its unsubscribe handle
func (l *Listeners) Add(listener SessionListener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listeners == nil {
		l.listeners = make(map[int]SessionListener)
	}
	id := l.nextID
	l.nextID++
	l.listeners[id] = listener
	l.order = append(l.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *Listeners) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.listeners, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered listeners
func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Emit notifies every registered listener
func (l *Listeners) Emit(event AuthEvent, session *Session) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()

	l.mu.Lock()
	snapshot := make([]SessionListener, 0, len(l.order))
	for _, id := range l.order {
		snapshot = append(snapshot, l.listeners[id])
	}
	l.mu.Unlock()

	for _, listener := range snapshot {
		var copied *Session
		if session != nil {
			s := *session
			copied = &s
		}
		listener(event, copied)
	}
}
