// Package cache — ограниченный по ёмкости key→value кеш с TTL и LRU-вытеснением.
// Передаётся в пайплайн как зависимость; используется для декодированных
// референсных изображений и описаний внешности от vision-модели. Кеш — чистая
// оптимизация: промах означает лишь повторное вычисление.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Store — потокобезопасный LRU-кеш с фиксированным TTL записей.
type Store struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // от самых свежих к самым старым
	items    map[string]*list.Element
	now      func() time.Time
}

// New создает кеш на capacity записей с временем жизни ttl.
// capacity <= 0 трактуется как 1.
func New(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get возвращает значение по ключу. Просроченная запись удаляется и
// считается промахом.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if s.now().After(e.expiresAt) {
		s.removeLocked(el)
		return nil, false
	}
	s.order.MoveToFront(el)
	return e.value, true
}

// Set сохраняет значение, вытесняя самую давно не использованную запись
// при переполнении.
func (s *Store) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(s.ttl)
	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		s.order.MoveToFront(el)
		return
	}
	el := s.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	s.items[key] = el
	for s.order.Len() > s.capacity {
		s.removeLocked(s.order.Back())
	}
}

// Delete удаляет запись, если она есть.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		s.removeLocked(el)
	}
}

// Len — текущее число записей, включая просроченные, но ещё не вытесненные.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Store) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	delete(s.items, e.key)
	s.order.Remove(el)
}
