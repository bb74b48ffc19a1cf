package kvstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	str       string
	list      []string
	set       map[string]struct{}
	zset      map[string]time.Time // member -> момент истечения
	expiresAt time.Time
}

// MemoryStore — in-process реализация Store с семантикой Redis для используемых команд.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*memEntry
	now  func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithMemoryClock подменяет часы (TTL и истечение элементов множеств).
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]*memEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup возвращает живую запись; истекшая удаляется. Вызывается под mu.
func (s *MemoryStore) lookup(key string) *memEntry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *MemoryStore) entry(key string) *memEntry {
	if e := s.lookup(key); e != nil {
		return e
	}
	e := &memEntry{}
	s.data[key] = e
	return e
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return "", false, nil
	}
	return e.str, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &memEntry{str: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(key)
}

func (s *MemoryStore) incrLocked(key string) (int64, error) {
	e := s.entry(key)
	var n int64
	if e.str != "" {
		v, err := strconv.ParseInt(e.str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformedValue, key)
		}
		n = v
	}
	n++
	e.str = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.lookup(key); e != nil {
		e.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) LPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lpushLocked(key, values...)
	return nil
}

func (s *MemoryStore) lpushLocked(key string, values ...string) {
	e := s.entry(key)
	// Как в Redis: каждый следующий аргумент оказывается левее предыдущего
	head := make([]string, 0, len(values)+len(e.list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	e.list = append(head, e.list...)
}

func (s *MemoryStore) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ltrimLocked(key, start, stop)
	return nil
}

func (s *MemoryStore) ltrimLocked(key string, start, stop int64) {
	e := s.lookup(key)
	if e == nil {
		return
	}
	lo, hi, ok := listRange(start, stop, int64(len(e.list)))
	if !ok {
		delete(s.data, key)
		return
	}
	e.list = append([]string(nil), e.list[lo:hi]...)
}

func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return []string{}, nil
	}
	lo, hi, ok := listRange(start, stop, int64(len(e.list)))
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), e.list[lo:hi]...), nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	if e.set == nil {
		e.set = make(map[string]struct{}, len(members))
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return nil
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return false, nil
	}
	_, ok := e.set[member]
	return ok, nil
}

func (s *MemoryStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.incrLocked(key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		s.data[key].expiresAt = s.now().Add(window)
	}
	return n, nil
}

func (s *MemoryStore) PushTrim(_ context.Context, key, value string, maxLen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lpushLocked(key, value)
	s.ltrimLocked(key, 0, maxLen-1)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := "", false
	if e := s.lookup(key); e != nil {
		cur, exists = e.str, true
	}
	next, write, err := fn(cur, exists)
	if err != nil || !write {
		return err
	}
	s.data[key] = &memEntry{str: next}
	return nil
}

func (s *MemoryStore) TouchMember(_ context.Context, key, member string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	if e.zset == nil {
		e.zset = make(map[string]time.Time)
	}
	e.zset[member] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) LiveMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return []string{}, nil
	}
	now := s.now()
	out := make([]string, 0, len(e.zset))
	for m, exp := range e.zset {
		if !now.Before(exp) {
			delete(e.zset, m)
			continue
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// listRange переводит индексы в стиле Redis (отрицательные — с конца) в границы среза.
func listRange(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}

var _ Store = (*MemoryStore)(nil)
