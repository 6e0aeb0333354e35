package remote

import "sync"

// Event is a payload recorded by FakeStore.Publish.
type Event struct {
	Key     string
	Payload []byte
}

// FakeStore is an in-memory Store for tests. The zero value is usable and
// disconnected; set Online to make it reachable.
type FakeStore struct {
	mu     sync.Mutex
	values map[string]string
	pushes []Event
	events []Event

	online bool

	// PushErr, if set, is returned by Push for every key.
	PushErr error
	// PushErrs, if set for a key, is returned by Push for that key.
	PushErrs map[string]error
}

// NewFakeStore creates an online FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string), PushErrs: make(map[string]error), online: true}
}

// SetOnline toggles reachability.
func (f *FakeStore) SetOnline(on bool) {
	f.mu.Lock()
	f.online = on
	f.mu.Unlock()
}

// Set writes a value as if it came from the remote side.
func (f *FakeStore) Set(key, value string) {
	f.mu.Lock()
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	f.mu.Unlock()
}

// Value returns the stored value for key.
func (f *FakeStore) Value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// Pull implements Store.
func (f *FakeStore) Pull(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return "", ErrUnavailable
	}
	v, ok := f.values[key]
	if !ok {
		return "", ErrUnavailable
	}
	return v, nil
}

// Push implements Store.
func (f *FakeStore) Push(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return ErrUnavailable
	}
	if f.PushErr != nil {
		return f.PushErr
	}
	if err := f.PushErrs[key]; err != nil {
		return err
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	f.pushes = append(f.pushes, Event{Key: key, Payload: []byte(value)})
	return nil
}

// Publish implements Store.
func (f *FakeStore) Publish(key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, Event{Key: key, Payload: payload})
	return nil
}

// Connected implements Store.
func (f *FakeStore) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

// Close implements Store.
func (f *FakeStore) Close() error { return nil }

// Pushes returns every successful push, in order.
func (f *FakeStore) Pushes() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.pushes...)
}

// PushesFor returns the successful pushes to key.
func (f *FakeStore) PushesFor(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.pushes {
		if p.Key == key {
			out = append(out, string(p.Payload))
		}
	}
	return out
}

// Events returns every published event, in order.
func (f *FakeStore) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}
