package token

import "sync"

// List is an ordered wallet asset list keyed by symbol.
type List struct {
	mu    sync.RWMutex
	items []*Token
	index map[string]int
}

func NewList(tokens ...*Token) *List {
	l := &List{index: map[string]int{}}
	for _, t := range tokens {
		l.Upsert(t)
	}
	return l
}

// Upsert replaces the token occupying the same slot, or appends it.
// It reports whether an existing entry was replaced.
func (l *List) Upsert(t *Token) bool {
	if t == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index == nil {
		l.index = map[string]int{}
	}
	if i, ok := l.index[t.UniqueIdentifier()]; ok {
		l.items[i] = t
		return true
	}
	l.index[t.UniqueIdentifier()] = len(l.items)
	l.items = append(l.items, t)
	return false
}

func (l *List) Get(symbol string) (*Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[symbol]
	if !ok {
		return nil, false
	}
	return l.items[i], true
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Items returns a snapshot in insertion order.
func (l *List) Items() []*Token {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Token, len(l.items))
	copy(out, l.items)
	return out
}
