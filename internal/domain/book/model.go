// Package book defines the book aggregate: a listed book together with the
// borrow requests embedded in it. The aggregate is loaded and saved as one
// unit; requests never exist outside their book.
package book

import "time"

// Condition describes the physical state of a listed book.
type Condition string

const (
	ConditionNew        Condition = "New"
	ConditionLikeNew    Condition = "Like New"
	ConditionVeryGood   Condition = "Very Good"
	ConditionGood       Condition = "Good"
	ConditionAcceptable Condition = "Acceptable"
)

// Conditions lists every valid condition, in display order.
var Conditions = []Condition{
	ConditionNew,
	ConditionLikeNew,
	ConditionVeryGood,
	ConditionGood,
	ConditionAcceptable,
}

// Valid reports whether c is one of the enumerated conditions.
func (c Condition) Valid() bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the state of a borrow request. Only Pending is mutable: a request
// moves to Accepted or Declined exactly once, or is removed by cancellation.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusAccepted Status = "Accepted"
	StatusDeclined Status = "Declined"
)

// Request is a borrow request embedded in a book.
type Request struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Book is the aggregate root. TotalRequests always equals len(Requests)
// after a completed mutation. Version is the optimistic concurrency token
// bumped by the store on every save.
type Book struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Author        string    `json:"author" db:"author"`
	Condition     Condition `json:"condition" db:"condition"`
	Image         string    `json:"image,omitempty" db:"image"`
	OwnerID       string    `json:"owner" db:"owner_id"`
	Requests      []Request `json:"requests" db:"-"`
	TotalRequests int       `json:"totalRequests" db:"total_requests"`
	Version       int64     `json:"-" db:"version"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// RequestByID returns a pointer into Requests for in-place mutation, or nil.
func (b *Book) RequestByID(requestID string) *Request {
	for i := range b.Requests {
		if b.Requests[i].ID == requestID {
			return &b.Requests[i]
		}
	}
	return nil
}

// PendingRequestBy reports whether userID already has a pending request on b.
func (b *Book) PendingRequestBy(userID string) bool {
	for _, r := range b.Requests {
		if r.UserID == userID && r.Status == StatusPending {
			return true
		}
	}
	return false
}

// RemoveRequest deletes the request with the given id from the embedded list
// and reports whether it was present.
func (b *Book) RemoveRequest(requestID string) bool {
	for i := range b.Requests {
		if b.Requests[i].ID == requestID {
			b.Requests = append(b.Requests[:i], b.Requests[i+1:]...)
			return true
		}
	}
	return false
}

// Summary is the compact book projection used in request listings.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Condition Condition `json:"condition"`
	Image     string    `json:"image,omitempty"`
	OwnerID   string    `json:"owner,omitempty"`
}

// Summary returns the compact projection of b.
func (b Book) Summary() Summary {
	return Summary{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Condition: b.Condition,
		Image:     b.Image,
		OwnerID:   b.OwnerID,
	}
}
