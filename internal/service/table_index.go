package service

import "sync"

// TableIndex memoizes queue tables known to exist in this process. Only
// positive lookups are cached; a table created by another worker is found by
// the next database check.
type TableIndex struct {
	mu     sync.RWMutex
	tables map[string]struct{}
}

func NewTableIndex() *TableIndex {
	return &TableIndex{tables: make(map[string]struct{})}
}

func (i *TableIndex) Known(name string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.tables[name]
	return ok
}

func (i *TableIndex) Remember(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tables[name] = struct{}{}
}

func (i *TableIndex) Forget(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.tables, name)
}
