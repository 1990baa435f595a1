// Package store provides the typed in-memory keyspace behind respkv: string,
// list and set values with lazily enforced expiration.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrWrongType is returned when a command addresses a key holding a
// different kind of value. The text is the RESP error reply.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Kind identifies the type of value stored under a key.
type Kind int

// Key kinds. KindNone means the key is absent.
const (
	KindNone Kind = iota
	KindString
	KindList
	KindSet
)

// String returns the name reported by the TYPE command.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return "none"
	}
}

// NoExpiry is the TTL reported for keys without an expiration record.
const NoExpiry int64 = -1

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for expiration.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the in-memory keyspace. Every exported method takes the single
// store mutex for its whole duration, so each call is atomic with respect to
// every other call. A key holds exactly one kind of value at a time.
type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	strings map[string][]byte
	lists   map[string]*List
	sets    map[string]*Set
	expires map[string]time.Time
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		strings: make(map[string][]byte),
		lists:   make(map[string]*List),
		sets:    make(map[string]*Set),
		expires: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolve returns the kind of key, honoring expiration. A key whose deadline
// has passed loses its value and is reported absent. Its expiration record
// stays behind as a tombstone so TTL answers the same whichever call touched
// the key first. Every operation goes through resolve. Must hold s.mu.
func (s *Store) resolve(key string, now time.Time) Kind {
	if at, ok := s.expires[key]; ok && !now.Before(at) {
		s.dropValue(key)
		return KindNone
	}
	if _, ok := s.strings[key]; ok {
		return KindString
	}
	if _, ok := s.lists[key]; ok {
		return KindList
	}
	if _, ok := s.sets[key]; ok {
		return KindSet
	}
	return KindNone
}

// dropValue removes the value of key but keeps its expiration record.
// Must hold s.mu.
func (s *Store) dropValue(key string) {
	delete(s.strings, key)
	delete(s.lists, key)
	delete(s.sets, key)
}

// purge removes key and its expiration record. Must hold s.mu.
func (s *Store) purge(key string) {
	s.dropValue(key)
	delete(s.expires, key)
}

// Set stores value under key, replacing any previous value of any kind and
// clearing its expiration.
func (s *Store) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	s.strings[key] = cloneBytes(value)
}

// SetEX stores value under key with a time to live.
func (s *Store) SetEX(key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	s.strings[key] = cloneBytes(value)
	s.expires[key] = s.now().Add(ttl)
}

// SetNX sets key to value if key does not exist. Returns true if set.
func (s *Store) SetNX(key string, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolve(key, s.now()) != KindNone {
		return false
	}
	s.purge(key)
	s.strings[key] = cloneBytes(value)
	return true
}

// Get returns a copy of the string stored at key.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.resolve(key, s.now()) {
	case KindNone:
		return nil, false, nil
	case KindString:
		return cloneBytes(s.strings[key]), true, nil
	default:
		return nil, false, ErrWrongType
	}
}

// Del removes key whatever its kind. Returns true if the key existed.
func (s *Store) Del(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolve(key, s.now()) == KindNone {
		return false
	}
	s.purge(key)
	return true
}

// Exists reports whether key holds a live value of any kind.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(key, s.now()) != KindNone
}

// Type returns the kind of value stored at key.
func (s *Store) Type(key string) Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(key, s.now())
}

// Keys returns the live keys matching the glob pattern, sorted.
func (s *Store) Keys(pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	candidates := make([]string, 0, len(s.strings)+len(s.lists)+len(s.sets))
	for k := range s.strings {
		candidates = append(candidates, k)
	}
	for k := range s.lists {
		candidates = append(candidates, k)
	}
	for k := range s.sets {
		candidates = append(candidates, k)
	}

	keys := make([]string, 0, len(candidates))
	for _, k := range candidates {
		if s.resolve(k, now) == KindNone {
			continue
		}
		if MatchPattern(k, pattern) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of live keys.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, at := range s.expires {
		if !now.Before(at) {
			s.dropValue(k)
		}
	}
	return len(s.strings) + len(s.lists) + len(s.sets)
}

// Flush removes every key.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings = make(map[string][]byte)
	s.lists = make(map[string]*List)
	s.sets = make(map[string]*Set)
	s.expires = make(map[string]time.Time)
}

// Expire sets a time to live on an existing key. Returns false if the key
// does not exist. A non-positive ttl makes the key absent on next access.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.resolve(key, now) == KindNone {
		return false
	}
	s.expires[key] = now.Add(ttl)
	return true
}

// TTL returns the remaining time to live of key in whole seconds, rounded up.
// Keys without an expiration record, including absent keys, report NoExpiry.
// An expired key reports 0 until it is written again or deleted by Flush.
func (s *Store) TTL(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.resolve(key, now)
	at, ok := s.expires[key]
	if !ok {
		return NoExpiry
	}
	ms := at.Sub(now).Milliseconds()
	return max(0, (ms+999)/1000)
}

// ========================
// List Operations
// ========================

// list returns the list at key, creating it when create is set.
// Must hold s.mu.
func (s *Store) list(key string, create bool) (*List, error) {
	switch s.resolve(key, s.now()) {
	case KindList:
		return s.lists[key], nil
	case KindNone:
		if !create {
			return nil, nil
		}
		s.purge(key)
		l := NewList()
		s.lists[key] = l
		return l, nil
	default:
		return nil, ErrWrongType
	}
}

// LPush inserts values at the head of the list one at a time, so the last
// value ends up first. Returns the number of values pushed.
func (s *Store) LPush(key string, values ...[]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.list(key, true)
	if err != nil {
		return 0, err
	}
	l.LPush(values...)
	return len(values), nil
}

// RPush appends values to the list. Returns the number of values pushed.
func (s *Store) RPush(key string, values ...[]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.list(key, true)
	if err != nil {
		return 0, err
	}
	l.RPush(values...)
	return len(values), nil
}

// LPop removes and returns the first element of the list.
func (s *Store) LPop(key string) ([]byte, bool, error) {
	return s.pop(key, (*List).LPop)
}

// RPop removes and returns the last element of the list.
func (s *Store) RPop(key string) ([]byte, bool, error) {
	return s.pop(key, (*List).RPop)
}

func (s *Store) pop(key string, fn func(*List) ([]byte, bool)) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.list(key, false)
	if err != nil || l == nil {
		return nil, false, err
	}
	val, ok := fn(l)
	if l.Len() == 0 {
		s.purge(key)
	}
	return val, ok, nil
}

// LRange returns the elements between start and stop inclusive. Negative
// indices count from the tail.
func (s *Store) LRange(key string, start, stop int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.list(key, false)
	if err != nil || l == nil {
		return nil, err
	}
	return l.Range(start, stop), nil
}

// LLen returns the length of the list.
func (s *Store) LLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.list(key, false)
	if err != nil || l == nil {
		return 0, err
	}
	return l.Len(), nil
}

// ========================
// Set Operations
// ========================

// set returns the set at key, creating it when create is set.
// Must hold s.mu.
func (s *Store) set(key string, create bool) (*Set, error) {
	switch s.resolve(key, s.now()) {
	case KindSet:
		return s.sets[key], nil
	case KindNone:
		if !create {
			return nil, nil
		}
		s.purge(key)
		st := NewSet()
		s.sets[key] = st
		return st, nil
	default:
		return nil, ErrWrongType
	}
}

// SAdd adds members to the set. Returns the number actually added.
func (s *Store) SAdd(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.set(key, true)
	if err != nil {
		return 0, err
	}
	return st.Add(members...), nil
}

// SRem removes members from the set. Returns the number actually removed.
func (s *Store) SRem(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.set(key, false)
	if err != nil || st == nil {
		return 0, err
	}
	n := st.Rem(members...)
	if st.Card() == 0 {
		s.purge(key)
	}
	return n, nil
}

// SIsMember reports whether member belongs to the set.
func (s *Store) SIsMember(key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.set(key, false)
	if err != nil || st == nil {
		return false, err
	}
	return st.IsMember(member), nil
}

// SMembers returns the members of the set, sorted.
func (s *Store) SMembers(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.set(key, false)
	if err != nil || st == nil {
		return nil, err
	}
	members := st.Members()
	sort.Strings(members)
	return members, nil
}

// SCard returns the number of members in the set.
func (s *Store) SCard(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.set(key, false)
	if err != nil || st == nil {
		return 0, err
	}
	return st.Card(), nil
}
