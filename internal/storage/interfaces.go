// Package storage defines the persistence interfaces for the BookSwap
// service. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/dhaarna97/BookSwap/internal/domain/book"
	"github.com/dhaarna97/BookSwap/internal/domain/user"
)

var (
	// ErrNotFound signals an absent record. For ownership-scoped operations
	// it also covers "present but not yours".
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict signals that a book aggregate was modified between
	// read and save. Callers re-read and retry.
	ErrVersionConflict = errors.New("book version conflict")

	// ErrDuplicateEmail signals a registration against an email already in use.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserStore persists user records.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	// GetUsersByIDs loads several users at once for populating summaries.
	// Missing ids are simply absent from the result map.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]user.User, error)
}

// BookStore persists book aggregates. A book and its embedded requests are
// written as one unit; UpdateBook enforces the optimistic version guard.
type BookStore interface {
	CreateBook(ctx context.Context, b book.Book) (book.Book, error)
	GetBook(ctx context.Context, id string) (book.Book, error)
	ListBooks(ctx context.Context) ([]book.Book, error)
	ListBooksByOwner(ctx context.Context, ownerID string) ([]book.Book, error)

	// UpdateBook saves the whole aggregate if the stored version still equals
	// expectedVersion, bumping the version on success. Returns
	// ErrVersionConflict when another writer got there first.
	UpdateBook(ctx context.Context, b book.Book, expectedVersion int64) (book.Book, error)

	// DeleteBook removes the book and its embedded requests in one shot.
	// The ownership filter is part of the query: a non-owner gets
	// ErrNotFound, indistinguishable from a missing id.
	DeleteBook(ctx context.Context, id, ownerID string) (book.Book, error)

	// FindBookByRequest returns the book containing the request with the
	// given id, regardless of who owns either.
	FindBookByRequest(ctx context.Context, requestID string) (book.Book, error)

	// ListBooksRequestedBy returns every book holding at least one request
	// created by userID.
	ListBooksRequestedBy(ctx context.Context, userID string) ([]book.Book, error)

	// ListBooksWithRequestsByOwner returns the owner's books that hold at
	// least one request.
	ListBooksWithRequestsByOwner(ctx context.Context, ownerID string) ([]book.Book, error)
}
