package hosts

import (
	"slices"
	"sync"
)

// Map is the per-scan host set. It is safe for concurrent use; every write
// goes through Merge so concurrent strategies never lose each other's fields.
type Map struct {
	mu    sync.RWMutex
	hosts map[string]*Host
}

// NewMap returns an empty host map.
func NewMap() *Map {
	return &Map{hosts: make(map[string]*Host)}
}

// Upsert merges h into the record for h.IP and returns a copy of the result.
func (m *Map) Upsert(h Host) Host {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.hosts[h.IP]; ok {
		merged := Merge(*existing, h)
		*existing = merged
		return merged.Clone()
	}
	c := h.Clone()
	m.hosts[h.IP] = &c
	return c.Clone()
}

// UpsertAll merges every record in hs and returns how many addresses were new.
func (m *Map) UpsertAll(hs []Host) int {
	added := 0
	for _, h := range hs {
		if !m.Contains(h.IP) {
			added++
		}
		m.Upsert(h)
	}
	return added
}

// Update applies fn to the stored record for ip under the write lock.
// It reports false when ip is unknown.
func (m *Map) Update(ip string, fn func(h *Host)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hosts[ip]
	if !ok {
		return false
	}
	fn(h)
	return true
}

// Get returns a copy of the record for ip.
func (m *Map) Get(ip string) (Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hosts[ip]
	if !ok {
		return Host{}, false
	}
	return h.Clone(), true
}

// Contains reports whether ip has a record.
func (m *Map) Contains(ip string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.hosts[ip]
	return ok
}

// Len returns the number of records.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hosts)
}

// Sorted returns copies of all records ordered by address.
func (m *Map) Sorted() []Host {
	m.mu.RLock()
	out := make([]Host, 0, len(m.hosts))
	for _, h := range m.hosts {
		out = append(out, h.Clone())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Host) int { return CompareAddr(a.IP, b.IP) })
	return out
}

// IPs returns every address in sorted order.
func (m *Map) IPs() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.hosts))
	for ip := range m.hosts {
		out = append(out, ip)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, CompareAddr)
	return out
}
