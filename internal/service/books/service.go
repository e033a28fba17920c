// Package books implements the book catalog and the request lifecycle
// engine. A request lives inside its book aggregate; every mutation loads
// the aggregate, applies the state checks, and saves it under the optimistic
// version guard, retrying when a concurrent writer wins the race.
package books

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhaarna97/BookSwap/internal/apperrors"
	"github.com/dhaarna97/BookSwap/internal/domain/book"
	"github.com/dhaarna97/BookSwap/internal/domain/user"
	"github.com/dhaarna97/BookSwap/internal/metrics"
	"github.com/dhaarna97/BookSwap/internal/storage"
	"github.com/dhaarna97/BookSwap/pkg/logger"
)

// maxSaveAttempts bounds the re-read loop under version conflicts.
const maxSaveAttempts = 3

// Resolution actions accepted by ResolveRequest.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

// Service is the book catalog and request lifecycle engine.
type Service struct {
	store storage.BookStore
	users storage.UserStore
	log   *logger.Logger
}

// New constructs the book service.
func New(store storage.BookStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("books")
	}
	return &Service{store: store, users: users, log: log}
}

// PostBookInput is the payload for listing a new book.
type PostBookInput struct {
	Title     string
	Author    string
	Condition string
	Image     string
}

// UpdateBookInput is a partial patch; nil fields are left unchanged.
type UpdateBookInput struct {
	Title     *string
	Author    *string
	Condition *string
	Image     *string
}

// WithOwner decorates a book with its owner's public profile.
type WithOwner struct {
	book.Book
	OwnerInfo user.Public `json:"ownerInfo"`
}

// MyRequest is one row of a requester's own request listing.
type MyRequest struct {
	RequestID string       `json:"requestId"`
	Book      book.Summary `json:"book"`
	Status    book.Status  `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ReceivedRequest is one row of an owner's incoming request listing.
type ReceivedRequest struct {
	RequestID string       `json:"requestId"`
	Book      book.Summary `json:"book"`
	Requester user.Public  `json:"requester"`
	Status    book.Status  `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// RequestWithUser is a request annotated with the requester's profile.
type RequestWithUser struct {
	ID        string      `json:"id"`
	Requester user.Public `json:"requester"`
	Status    book.Status `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// BookRequests is the owner's review view of one book's request list.
type BookRequests struct {
	Book     book.Summary      `json:"book"`
	Requests []RequestWithUser `json:"requests"`
}

// Resolved is the outcome of accepting or declining a request.
type Resolved struct {
	Book    book.Book    `json:"book"`
	Request book.Request `json:"request"`
}

// Cancelled is the outcome of cancelling a pending request.
type Cancelled struct {
	RequestID string `json:"requestId"`
	BookTitle string `json:"bookTitle"`
}

// --- Catalog ----------------------------------------------------------------

// PostBook lists a new book owned by ownerID.
func (s *Service) PostBook(ctx context.Context, ownerID string, input PostBookInput) (book.Book, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	input.Condition = strings.TrimSpace(input.Condition)

	if input.Title == "" {
		return book.Book{}, apperrors.Validation("title is required")
	}
	if input.Author == "" {
		return book.Book{}, apperrors.Validation("author is required")
	}
	if input.Condition == "" {
		return book.Book{}, apperrors.Validation("condition is required")
	}
	condition := book.Condition(input.Condition)
	if !condition.Valid() {
		return book.Book{}, apperrors.Validation("condition must be one of: New, Like New, Very Good, Good, Acceptable")
	}

	created, err := s.store.CreateBook(ctx, book.Book{
		Title:     input.Title,
		Author:    input.Author,
		Condition: condition,
		Image:     input.Image,
		OwnerID:   ownerID,
		Requests:  []book.Request{},
	})
	if err != nil {
		return book.Book{}, fmt.Errorf("create book: %w", err)
	}

	s.log.WithField("book_id", created.ID).
		WithField("owner_id", ownerID).
		Info("book posted")
	return created, nil
}

// ListAllBooks returns every listed book with its owner's public profile.
func (s *Service) ListAllBooks(ctx context.Context) ([]WithOwner, error) {
	all, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return s.populateOwners(ctx, all)
}

// ListMyBooks returns the caller's own listings.
func (s *Service) ListMyBooks(ctx context.Context, ownerID string) ([]book.Book, error) {
	owned, err := s.store.ListBooksByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owned books: %w", err)
	}
	return owned, nil
}

// GetBook returns one book with owner populated.
func (s *Service) GetBook(ctx context.Context, id string) (WithOwner, error) {
	b, err := s.store.GetBook(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return WithOwner{}, apperrors.NotFound("book not found")
	}
	if err != nil {
		return WithOwner{}, fmt.Errorf("get book: %w", err)
	}

	populated, err := s.populateOwners(ctx, []book.Book{b})
	if err != nil {
		return WithOwner{}, err
	}
	return populated[0], nil
}

// UpdateBook patches a book the caller owns. A non-owner receives the same
// not-found error as a caller naming a missing id.
func (s *Service) UpdateBook(ctx context.Context, id, ownerID string, patch UpdateBookInput) (book.Book, error) {
	if patch.Condition != nil {
		condition := book.Condition(strings.TrimSpace(*patch.Condition))
		if !condition.Valid() {
			return book.Book{}, apperrors.Validation("condition must be one of: New, Like New, Very Good, Good, Acceptable")
		}
	}

	updated, err := s.saveWithRetry(ctx,
		func(ctx context.Context) (book.Book, error) {
			return s.locateOwnedBook(ctx, id, ownerID, "book not found or you are not allowed to update")
		},
		func(b *book.Book) error {
			if patch.Title != nil {
				b.Title = strings.TrimSpace(*patch.Title)
			}
			if patch.Author != nil {
				b.Author = strings.TrimSpace(*patch.Author)
			}
			if patch.Condition != nil {
				b.Condition = book.Condition(strings.TrimSpace(*patch.Condition))
			}
			if patch.Image != nil {
				b.Image = *patch.Image
			}
			if b.Title == "" || b.Author == "" {
				return apperrors.Validation("title and author cannot be empty")
			}
			return nil
		})
	if err != nil {
		return book.Book{}, err
	}

	s.log.WithField("book_id", id).WithField("owner_id", ownerID).Info("book updated")
	return updated, nil
}

// DeleteBook removes a book the caller owns, along with its embedded requests.
func (s *Service) DeleteBook(ctx context.Context, id, ownerID string) (book.Book, error) {
	deleted, err := s.store.DeleteBook(ctx, id, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return book.Book{}, apperrors.NotFound("book not found or you are not allowed to delete")
	}
	if err != nil {
		return book.Book{}, fmt.Errorf("delete book: %w", err)
	}

	s.log.WithField("book_id", id).WithField("owner_id", ownerID).Info("book deleted")
	return deleted, nil
}

// --- Request lifecycle ------------------------------------------------------

// RequestBook creates a pending borrow request from requesterID on bookID.
func (s *Service) RequestBook(ctx context.Context, bookID, requesterID string) (book.Book, error) {
	var requestID string

	updated, err := s.saveWithRetry(ctx,
		func(ctx context.Context) (book.Book, error) {
			b, err := s.store.GetBook(ctx, bookID)
			if errors.Is(err, storage.ErrNotFound) {
				return book.Book{}, apperrors.NotFound("book not found")
			}
			if err != nil {
				return book.Book{}, fmt.Errorf("get book: %w", err)
			}
			return b, nil
		},
		func(b *book.Book) error {
			if b.OwnerID == requesterID {
				return apperrors.InvalidOperation("you cannot request your own book")
			}
			if b.PendingRequestBy(requesterID) {
				return apperrors.InvalidOperation("you already have a pending request for this book")
			}
			requestID = uuid.New().String()
			b.Requests = append(b.Requests, book.Request{
				ID:        requestID,
				UserID:    requesterID,
				Status:    book.StatusPending,
				CreatedAt: time.Now().UTC(),
			})
			b.TotalRequests++
			return nil
		})
	if err != nil {
		return book.Book{}, err
	}

	metrics.RecordLifecycle("created")
	s.log.WithField("book_id", bookID).
		WithField("request_id", requestID).
		WithField("requester_id", requesterID).
		Info("book requested")
	return updated, nil
}

// ResolveRequest accepts or declines a pending request on a book the caller
// owns. Resolution is terminal: a second call fails without changing state.
func (s *Service) ResolveRequest(ctx context.Context, requestID, action, ownerID string) (Resolved, error) {
	if action != ActionAccept && action != ActionDecline {
		return Resolved{}, apperrors.Validation("action must be accept or decline")
	}

	status := book.StatusAccepted
	if action == ActionDecline {
		status = book.StatusDeclined
	}

	updated, err := s.saveWithRetry(ctx,
		func(ctx context.Context) (book.Book, error) {
			return s.locateOwnedRequest(ctx, requestID, ownerID)
		},
		func(b *book.Book) error {
			request := b.RequestByID(requestID)
			if request == nil {
				return apperrors.NotFound("request not found")
			}
			if request.Status != book.StatusPending {
				return apperrors.InvalidOperation("request has already been processed")
			}
			request.Status = status
			// TotalRequests is the lifetime count; resolution does not
			// change the list length, so the counter stays put.
			return nil
		})
	if err != nil {
		return Resolved{}, err
	}

	resolved := updated.RequestByID(requestID)
	if resolved == nil {
		return Resolved{}, apperrors.Internal("resolved request missing from saved book", nil)
	}

	metrics.RecordLifecycle(strings.ToLower(string(status)))
	s.log.WithField("request_id", requestID).
		WithField("book_id", updated.ID).
		WithField("owner_id", ownerID).
		WithField("status", string(status)).
		Info("request resolved")
	return Resolved{Book: updated, Request: *resolved}, nil
}

// CancelRequest withdraws the caller's own pending request, removing it from
// the book entirely.
func (s *Service) CancelRequest(ctx context.Context, requestID, requesterID string) (Cancelled, error) {
	updated, err := s.saveWithRetry(ctx,
		func(ctx context.Context) (book.Book, error) {
			return s.locateRequesterRequest(ctx, requestID, requesterID)
		},
		func(b *book.Book) error {
			request := b.RequestByID(requestID)
			if request == nil {
				return apperrors.NotFound("request not found")
			}
			if request.Status != book.StatusPending {
				return apperrors.InvalidOperation("can only cancel pending requests")
			}
			b.RemoveRequest(requestID)
			b.TotalRequests--
			return nil
		})
	if err != nil {
		return Cancelled{}, err
	}

	metrics.RecordLifecycle("cancelled")
	s.log.WithField("request_id", requestID).
		WithField("book_id", updated.ID).
		WithField("requester_id", requesterID).
		Info("request cancelled")
	return Cancelled{RequestID: requestID, BookTitle: updated.Title}, nil
}

// ListMyRequests returns one row per request the caller has open or had
// resolved, across all books.
func (s *Service) ListMyRequests(ctx context.Context, userID string) ([]MyRequest, error) {
	booksWithMine, err := s.store.ListBooksRequestedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list requested books: %w", err)
	}

	rows := make([]MyRequest, 0)
	for _, b := range booksWithMine {
		for _, r := range b.Requests {
			if r.UserID != userID {
				continue
			}
			rows = append(rows, MyRequest{
				RequestID: r.ID,
				Book:      b.Summary(),
				Status:    r.Status,
				CreatedAt: r.CreatedAt,
			})
		}
	}
	return rows, nil
}

// ListReceivedRequests returns one row per request across all of the owner's
// books, with each requester's public profile attached.
func (s *Service) ListReceivedRequests(ctx context.Context, ownerID string) ([]ReceivedRequest, error) {
	owned, err := s.store.ListBooksWithRequestsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list books with requests: %w", err)
	}

	requesters, err := s.loadRequesters(ctx, owned)
	if err != nil {
		return nil, err
	}

	rows := make([]ReceivedRequest, 0)
	for _, b := range owned {
		summary := b.Summary()
		summary.OwnerID = "" // redundant in the owner's own view
		for _, r := range b.Requests {
			rows = append(rows, ReceivedRequest{
				RequestID: r.ID,
				Book:      summary,
				Requester: requesters[r.UserID],
				Status:    r.Status,
				CreatedAt: r.CreatedAt,
			})
		}
	}
	return rows, nil
}

// ListBookRequests returns one owned book's full request list for review.
func (s *Service) ListBookRequests(ctx context.Context, bookID, ownerID string) (BookRequests, error) {
	b, err := s.locateOwnedBook(ctx, bookID, ownerID, "book not found or you are not the owner")
	if err != nil {
		return BookRequests{}, err
	}

	requesters, err := s.loadRequesters(ctx, []book.Book{b})
	if err != nil {
		return BookRequests{}, err
	}

	requests := make([]RequestWithUser, 0, len(b.Requests))
	for _, r := range b.Requests {
		requests = append(requests, RequestWithUser{
			ID:        r.ID,
			Requester: requesters[r.UserID],
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}

	summary := b.Summary()
	summary.OwnerID = ""
	return BookRequests{Book: summary, Requests: requests}, nil
}

// --- Internals --------------------------------------------------------------

// saveWithRetry runs the load-apply-save cycle under the optimistic version
// guard, re-reading the aggregate when a concurrent writer wins.
func (s *Service) saveWithRetry(
	ctx context.Context,
	load func(context.Context) (book.Book, error),
	apply func(*book.Book) error,
) (book.Book, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		b, err := load(ctx)
		if err != nil {
			return book.Book{}, err
		}
		if err := apply(&b); err != nil {
			return book.Book{}, err
		}

		saved, err := s.store.UpdateBook(ctx, b, b.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.RecordVersionConflict()
			s.log.WithField("book_id", b.ID).
				WithField("attempt", attempt+1).
				Warn("version conflict on book save, retrying")
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			return book.Book{}, apperrors.NotFound("book not found")
		}
		if err != nil {
			return book.Book{}, fmt.Errorf("save book: %w", err)
		}
		return saved, nil
	}
	return book.Book{}, apperrors.Conflict("book was modified concurrently, please retry")
}

// locateOwnedBook merges the existence and ownership checks into one lookup
// so a non-owner cannot distinguish someone else's book from a missing one.
func (s *Service) locateOwnedBook(ctx context.Context, bookID, ownerID, message string) (book.Book, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if errors.Is(err, storage.ErrNotFound) {
		return book.Book{}, apperrors.NotFound(message)
	}
	if err != nil {
		return book.Book{}, fmt.Errorf("get book: %w", err)
	}
	if b.OwnerID != ownerID {
		return book.Book{}, apperrors.NotFound(message)
	}
	return b, nil
}

// locateOwnedRequest finds the book containing the request, constrained to
// the caller's ownership, with the same error for both failure modes.
func (s *Service) locateOwnedRequest(ctx context.Context, requestID, ownerID string) (book.Book, error) {
	b, err := s.store.FindBookByRequest(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return book.Book{}, apperrors.NotFound("request not found or you are not authorized")
	}
	if err != nil {
		return book.Book{}, fmt.Errorf("find book by request: %w", err)
	}
	if b.OwnerID != ownerID {
		return book.Book{}, apperrors.NotFound("request not found or you are not authorized")
	}
	return b, nil
}

// locateRequesterRequest is the requester-side twin of locateOwnedRequest.
func (s *Service) locateRequesterRequest(ctx context.Context, requestID, requesterID string) (book.Book, error) {
	b, err := s.store.FindBookByRequest(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return book.Book{}, apperrors.NotFound("request not found or you are not authorized to cancel this request")
	}
	if err != nil {
		return book.Book{}, fmt.Errorf("find book by request: %w", err)
	}
	request := b.RequestByID(requestID)
	if request == nil || request.UserID != requesterID {
		return book.Book{}, apperrors.NotFound("request not found or you are not authorized to cancel this request")
	}
	return b, nil
}

func (s *Service) populateOwners(ctx context.Context, list []book.Book) ([]WithOwner, error) {
	ids := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, b := range list {
		if !seen[b.OwnerID] {
			seen[b.OwnerID] = true
			ids = append(ids, b.OwnerID)
		}
	}

	owners, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load owners: %w", err)
	}

	result := make([]WithOwner, 0, len(list))
	for _, b := range list {
		result = append(result, WithOwner{Book: b, OwnerInfo: owners[b.OwnerID].Public()})
	}
	return result, nil
}

func (s *Service) loadRequesters(ctx context.Context, list []book.Book) (map[string]user.Public, error) {
	ids := make([]string, 0)
	seen := make(map[string]bool)
	for _, b := range list {
		for _, r := range b.Requests {
			if !seen[r.UserID] {
				seen[r.UserID] = true
				ids = append(ids, r.UserID)
			}
		}
	}

	loaded, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load requesters: %w", err)
	}

	result := make(map[string]user.Public, len(loaded))
	for id, u := range loaded {
		result[id] = u.Public()
	}
	return result, nil
}
