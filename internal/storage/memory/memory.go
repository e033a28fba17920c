// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces. It backs tests and local development and mirrors the
// postgres store's semantics, including the optimistic version guard.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhaarna97/BookSwap/internal/domain/book"
	"github.com/dhaarna97/BookSwap/internal/domain/user"
	"github.com/dhaarna97/BookSwap/internal/storage"
)

// Store is an in-memory storage.UserStore and storage.BookStore.
type Store struct {
	mu    sync.RWMutex
	users map[string]user.User
	books map[string]book.Book
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BookStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users: make(map[string]user.User),
		books: make(map[string]book.Book),
	}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return user.User{}, storage.ErrDuplicateEmail
		}
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []string) (map[string]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]user.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

// --- BookStore --------------------------------------------------------------

func (s *Store) CreateBook(_ context.Context, b book.Book) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	if b.Requests == nil {
		b.Requests = []book.Request{}
	}
	s.books[b.ID] = cloneBook(b)
	return b, nil
}

func (s *Store) GetBook(_ context.Context, id string) (book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[id]
	if !ok {
		return book.Book{}, storage.ErrNotFound
	}
	return cloneBook(b), nil
}

func (s *Store) ListBooks(_ context.Context) ([]book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(book.Book) bool { return true }), nil
}

func (s *Store) ListBooksByOwner(_ context.Context, ownerID string) ([]book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(b book.Book) bool { return b.OwnerID == ownerID }), nil
}

func (s *Store) UpdateBook(_ context.Context, b book.Book, expectedVersion int64) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.books[b.ID]
	if !ok {
		return book.Book{}, storage.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return book.Book{}, storage.ErrVersionConflict
	}

	b.CreatedAt = stored.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	b.Version = expectedVersion + 1
	if b.Requests == nil {
		b.Requests = []book.Request{}
	}
	s.books[b.ID] = cloneBook(b)
	return b, nil
}

func (s *Store) DeleteBook(_ context.Context, id, ownerID string) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[id]
	if !ok || b.OwnerID != ownerID {
		return book.Book{}, storage.ErrNotFound
	}
	delete(s.books, id)
	return cloneBook(b), nil
}

func (s *Store) FindBookByRequest(_ context.Context, requestID string) (book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.books {
		for _, r := range b.Requests {
			if r.ID == requestID {
				return cloneBook(b), nil
			}
		}
	}
	return book.Book{}, storage.ErrNotFound
}

func (s *Store) ListBooksRequestedBy(_ context.Context, userID string) ([]book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(b book.Book) bool {
		for _, r := range b.Requests {
			if r.UserID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (s *Store) ListBooksWithRequestsByOwner(_ context.Context, ownerID string) ([]book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(b book.Book) bool {
		return b.OwnerID == ownerID && len(b.Requests) > 0
	}), nil
}

// collect returns clones of books matching the filter, oldest first.
// Callers must hold at least the read lock.
func (s *Store) collect(match func(book.Book) bool) []book.Book {
	result := make([]book.Book, 0)
	for _, b := range s.books {
		if match(b) {
			result = append(result, cloneBook(b))
		}
	}
	sortBooks(result)
	return result
}

func sortBooks(books []book.Book) {
	sort.Slice(books, func(i, j int) bool {
		if books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].ID < books[j].ID
		}
		return books[i].CreatedAt.Before(books[j].CreatedAt)
	})
}

// cloneBook deep-copies the aggregate so callers cannot alias the stored
// requests slice.
func cloneBook(b book.Book) book.Book {
	requests := make([]book.Request, len(b.Requests))
	copy(requests, b.Requests)
	b.Requests = requests
	return b
}
