package store

// Set is an unordered collection of unique members.
// The Set itself is NOT thread-safe; concurrency is managed by the Store.
type Set struct {
	members map[string]struct{}
}

// NewSet creates a new empty Set.
func NewSet() *Set {
	return &Set{members: make(map[string]struct{})}
}

// Add adds one or more members. Returns the number of members actually added
// (duplicates within the same call count once).
func (s *Set) Add(members ...string) int {
	added := 0
	for _, m := range members {
		if _, exists := s.members[m]; !exists {
			s.members[m] = struct{}{}
			added++
		}
	}
	return added
}

// Rem removes one or more members. Returns the number of members actually removed.
func (s *Set) Rem(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, exists := s.members[m]; exists {
			delete(s.members, m)
			removed++
		}
	}
	return removed
}

// IsMember returns true if the member exists in the set.
func (s *Set) IsMember(member string) bool {
	_, exists := s.members[member]
	return exists
}

// Card returns the number of members in the set.
func (s *Set) Card() int {
	return len(s.members)
}

// Members returns all members in unspecified order.
func (s *Set) Members() []string {
	result := make([]string, 0, len(s.members))
	for m := range s.members {
		result = append(result, m)
	}
	return result
}
