package fragment

// UsedSet is the append-only set of artifact filenames referenced during a
// run, in first-use order.
type UsedSet struct {
	names []string
	seen  map[string]struct{}
}

// NewUsedSet returns an empty set.
func NewUsedSet() *UsedSet {
	return &UsedSet{seen: make(map[string]struct{})}
}

// Add records name; repeated names are ignored.
func (s *UsedSet) Add(name string) {
	if _, ok := s.seen[name]; ok {
		return
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
}

// Contains reports whether name was added.
func (s *UsedSet) Contains(name string) bool {
	_, ok := s.seen[name]
	return ok
}

// Names returns a copy of the recorded names.
func (s *UsedSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of distinct names.
func (s *UsedSet) Len() int { return len(s.names) }
