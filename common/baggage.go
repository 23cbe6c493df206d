package common

import "sync"

// Baggage is an insertion ordered string map safe for concurrent use.
type Baggage struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]string
}

func (b *Baggage) Set(key, value string) {

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.values == nil {
		b.values = make(map[string]string, 1)
	}
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
}

func (b *Baggage) Get(key string) (string, bool) {

	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[key]
	return v, ok
}

func (b *Baggage) Len() int {

	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.keys)
}

// Foreach stops when handler returns false.
func (b *Baggage) Foreach(handler func(k, v string) bool) {

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, k := range b.keys {
		if !handler(k, b.values[k]) {
			break
		}
	}
}

func (b *Baggage) Copy() *Baggage {

	c := &Baggage{}
	b.Foreach(func(k, v string) bool {
		c.Set(k, v)
		return true
	})
	return c
}

func (b *Baggage) Map() map[string]string {

	m := make(map[string]string)
	b.Foreach(func(k, v string) bool {
		m[k] = v
		return true
	})
	return m
}

func NewBaggage() *Baggage {
	return &Baggage{}
}
