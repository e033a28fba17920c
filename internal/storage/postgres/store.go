// Package postgres implements the storage interfaces on PostgreSQL.
//
// A book row carries its embedded requests as a JSONB column, so the whole
// aggregate is written in a single statement. Every save is guarded by the
// version column: UPDATE ... WHERE version = expected detects writers that
// raced us and surfaces storage.ErrVersionConflict instead of losing updates.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"github.com/dhaarna97/BookSwap/internal/domain/book"
	"github.com/dhaarna97/BookSwap/internal/domain/user"
	"github.com/dhaarna97/BookSwap/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// pq error code for unique constraint violations.
const uniqueViolation = "23505"

// Store implements storage.UserStore and storage.BookStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BookStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Connect opens and pings a PostgreSQL database.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Avatar, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return user.User{}, storage.ErrDuplicateEmail
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, name, email, password_hash, avatar, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, name, email, password_hash, avatar, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("select user by email: %w", err)
	}
	return u, nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]user.User, error) {
	if len(ids) == 0 {
		return map[string]user.User{}, nil
	}

	var users []user.User
	err := s.db.SelectContext(ctx, &users, `
		SELECT id, name, email, password_hash, avatar, created_at, updated_at
		FROM users WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select users by ids: %w", err)
	}

	result := make(map[string]user.User, len(users))
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// --- BookStore --------------------------------------------------------------

// bookRow is the flat row shape; requests travel as raw JSONB.
type bookRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	Author        string         `db:"author"`
	Condition     string         `db:"condition"`
	Image         string         `db:"image"`
	OwnerID       string         `db:"owner_id"`
	Requests      []byte         `db:"requests"`
	TotalRequests int            `db:"total_requests"`
	Version       int64          `db:"version"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

const bookColumns = `id, title, author, condition, image, owner_id, requests, total_requests, version, created_at, updated_at`

func (r bookRow) toBook() (book.Book, error) {
	requests := []book.Request{}
	if len(r.Requests) > 0 {
		if err := json.Unmarshal(r.Requests, &requests); err != nil {
			return book.Book{}, fmt.Errorf("decode requests for book %s: %w", r.ID, err)
		}
	}
	return book.Book{
		ID:            r.ID,
		Title:         r.Title,
		Author:        r.Author,
		Condition:     book.Condition(r.Condition),
		Image:         r.Image,
		OwnerID:       r.OwnerID,
		Requests:      requests,
		TotalRequests: r.TotalRequests,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func encodeRequests(requests []book.Request) ([]byte, error) {
	if requests == nil {
		requests = []book.Request{}
	}
	raw, err := json.Marshal(requests)
	if err != nil {
		return nil, fmt.Errorf("encode requests: %w", err)
	}
	return raw, nil
}

func (s *Store) CreateBook(ctx context.Context, b book.Book) (book.Book, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	if b.Requests == nil {
		b.Requests = []book.Request{}
	}

	raw, err := encodeRequests(b.Requests)
	if err != nil {
		return book.Book{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, condition, image, owner_id, requests, total_requests, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.Title, b.Author, string(b.Condition), b.Image, b.OwnerID, raw, b.TotalRequests, b.Version, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return book.Book{}, fmt.Errorf("insert book: %w", err)
	}
	return b, nil
}

func (s *Store) GetBook(ctx context.Context, id string) (book.Book, error) {
	var row bookRow
	err := s.db.GetContext(ctx, &row, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return book.Book{}, storage.ErrNotFound
	}
	if err != nil {
		return book.Book{}, fmt.Errorf("select book: %w", err)
	}
	return row.toBook()
}

func (s *Store) ListBooks(ctx context.Context) ([]book.Book, error) {
	return s.selectBooks(ctx, `SELECT `+bookColumns+` FROM books ORDER BY created_at`)
}

func (s *Store) ListBooksByOwner(ctx context.Context, ownerID string) ([]book.Book, error) {
	return s.selectBooks(ctx, `SELECT `+bookColumns+` FROM books WHERE owner_id = $1 ORDER BY created_at`, ownerID)
}

func (s *Store) UpdateBook(ctx context.Context, b book.Book, expectedVersion int64) (book.Book, error) {
	raw, err := encodeRequests(b.Requests)
	if err != nil {
		return book.Book{}, err
	}

	b.UpdatedAt = time.Now().UTC()
	b.Version = expectedVersion + 1

	result, err := s.db.ExecContext(ctx, `
		UPDATE books
		SET title = $2, author = $3, condition = $4, image = $5,
		    requests = $6, total_requests = $7, version = $8, updated_at = $9
		WHERE id = $1 AND version = $10
	`, b.ID, b.Title, b.Author, string(b.Condition), b.Image, raw, b.TotalRequests, b.Version, b.UpdatedAt, expectedVersion)
	if err != nil {
		return book.Book{}, fmt.Errorf("update book: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return book.Book{}, fmt.Errorf("update book rows: %w", err)
	}
	if rows == 0 {
		// Distinguish a vanished book from a concurrent writer.
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, b.ID); err != nil {
			return book.Book{}, fmt.Errorf("check book existence: %w", err)
		}
		if !exists {
			return book.Book{}, storage.ErrNotFound
		}
		return book.Book{}, storage.ErrVersionConflict
	}
	return b, nil
}

func (s *Store) DeleteBook(ctx context.Context, id, ownerID string) (book.Book, error) {
	var row bookRow
	err := s.db.GetContext(ctx, &row, `
		DELETE FROM books WHERE id = $1 AND owner_id = $2
		RETURNING `+bookColumns+`
	`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return book.Book{}, storage.ErrNotFound
	}
	if err != nil {
		return book.Book{}, fmt.Errorf("delete book: %w", err)
	}
	return row.toBook()
}

func (s *Store) FindBookByRequest(ctx context.Context, requestID string) (book.Book, error) {
	var row bookRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+bookColumns+` FROM books
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(requests) AS r
			WHERE r->>'id' = $1
		)
	`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return book.Book{}, storage.ErrNotFound
	}
	if err != nil {
		return book.Book{}, fmt.Errorf("select book by request: %w", err)
	}
	return row.toBook()
}

func (s *Store) ListBooksRequestedBy(ctx context.Context, userID string) ([]book.Book, error) {
	return s.selectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(requests) AS r
			WHERE r->>'userId' = $1
		)
		ORDER BY created_at
	`, userID)
}

func (s *Store) ListBooksWithRequestsByOwner(ctx context.Context, ownerID string) ([]book.Book, error) {
	return s.selectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE owner_id = $1 AND jsonb_array_length(requests) > 0
		ORDER BY created_at
	`, ownerID)
}

func (s *Store) selectBooks(ctx context.Context, query string, args ...interface{}) ([]book.Book, error) {
	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select books: %w", err)
	}
	books := make([]book.Book, 0, len(rows))
	for _, row := range rows {
		b, err := row.toBook()
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, nil
}
