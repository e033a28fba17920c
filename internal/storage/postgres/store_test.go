package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/dhaarna97/BookSwap/internal/domain/book"
	"github.com/dhaarna97/BookSwap/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func bookRows(b book.Book, requestsJSON string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "author", "condition", "image", "owner_id",
		"requests", "total_requests", "version", "created_at", "updated_at",
	}).AddRow(
		b.ID, b.Title, b.Author, string(b.Condition), b.Image, b.OwnerID,
		[]byte(requestsJSON), b.TotalRequests, b.Version, b.CreatedAt, b.UpdatedAt,
	)
}

func TestGetBookDecodesRequests(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	stored := book.Book{
		ID: "b1", Title: "Dune", Author: "Herbert", Condition: book.ConditionGood,
		OwnerID: "alice", TotalRequests: 1, Version: 3, CreatedAt: now, UpdatedAt: now,
	}
	requestsJSON := `[{"id":"r1","userId":"bob","status":"Pending","createdAt":"2026-01-02T15:04:05Z"}]`

	mock.ExpectQuery("SELECT (.+) FROM books WHERE id =").
		WithArgs("b1").
		WillReturnRows(bookRows(stored, requestsJSON))

	got, err := store.GetBook(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.Requests) != 1 || got.Requests[0].ID != "r1" || got.Requests[0].Status != book.StatusPending {
		t.Fatalf("requests not decoded: %+v", got.Requests)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetBookNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM books WHERE id =").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetBook(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateBookVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	b := book.Book{
		ID: "b1", Title: "Dune", Author: "Herbert", Condition: book.ConditionGood,
		OwnerID: "alice", Requests: []book.Request{}, Version: 3,
	}

	// Zero rows updated, but the book exists: someone else bumped the version.
	mock.ExpectExec("UPDATE books").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := store.UpdateBook(context.Background(), b, 3)
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateBookVanished(t *testing.T) {
	store, mock := newMockStore(t)

	b := book.Book{ID: "b1", Title: "Dune", Author: "Herbert", Condition: book.ConditionGood, Version: 3}

	mock.ExpectExec("UPDATE books").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.UpdateBook(context.Background(), b, 3)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateBookBumpsVersion(t *testing.T) {
	store, mock := newMockStore(t)

	b := book.Book{
		ID: "b1", Title: "Dune", Author: "Herbert", Condition: book.ConditionGood,
		Requests: []book.Request{{ID: "r1", UserID: "bob", Status: book.StatusPending, CreatedAt: time.Now().UTC()}},
		Version:  3,
	}

	mock.ExpectExec("UPDATE books").
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := store.UpdateBook(context.Background(), b, 3)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.Version != 4 {
		t.Fatalf("version = %d, want 4", saved.Version)
	}
}

func TestDeleteBookMergesOwnership(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("DELETE FROM books WHERE id = (.+) AND owner_id =").
		WithArgs("b1", "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.DeleteBook(context.Background(), "b1", "intruder")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
