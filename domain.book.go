package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LowStockThreshold is the stock level at or below which a book is listed as low stock.
const LowStockThreshold = 5

// Business rule errors. They are wrapped with details by the service and
// mapped to client errors by the api handlers.
var (
	ErrBookNotFound      = errors.New("book not found")
	ErrDuplicateISBN     = errors.New("isbn already registered")
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidStatus     = errors.New("invalid book status")
)

// IsBusinessError reports whether err is a business rule violation.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrDuplicateISBN) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidStatus)
}

// BookStatus represents the availability state of a book.
type BookStatus string

const (
	StatusAvailable BookStatus = "AVAILABLE"
	StatusBorrowed  BookStatus = "BORROWED"
	StatusReserved  BookStatus = "RESERVED"
	StatusLost      BookStatus = "LOST"
	StatusDamaged   BookStatus = "DAMAGED"
)

// BookStatuses lists all known statuses in display order.
var BookStatuses = []BookStatus{StatusAvailable, StatusBorrowed, StatusReserved, StatusLost, StatusDamaged}

// IsValid reports whether s is one of the known statuses.
func (s BookStatus) IsValid() bool {
	for _, v := range BookStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseBookStatus converts a case-insensitive status name into a BookStatus.
func ParseBookStatus(value string) (BookStatus, error) {
	status := BookStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return status, nil
}

// Book represents a book entity.
type Book struct {
	ID              int64      `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	ISBN            *string    `json:"isbn" db:"isbn"`
	PublicationYear *int       `json:"publicationYear" db:"publication_year"`
	Category        *string    `json:"category" db:"category"`
	Description     *string    `json:"description" db:"description"`
	StockQuantity   int        `json:"stockQuantity" db:"stock_quantity"`
	Price           *float64   `json:"price" db:"price"`
	Status          BookStatus `json:"status" db:"status"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// AddStock increases the stock by quantity then derives the status.
// The caller must ensure quantity is positive.
func (b *Book) AddStock(quantity int) {
	b.StockQuantity += quantity
	b.deriveStatus()
}

// ReduceStock decreases the stock by quantity then derives the status.
// The caller must ensure quantity is positive. The book is left
// untouched when there are not enough copies.
func (b *Book) ReduceStock(quantity int) error {
	if quantity > b.StockQuantity {
		return fmt.Errorf("%w. available stock: %d", ErrInsufficientStock, b.StockQuantity)
	}
	b.StockQuantity -= quantity
	b.deriveStatus()
	return nil
}

func (b *Book) deriveStatus() {
	if b.StockQuantity > 0 {
		b.Status = StatusAvailable
	} else {
		b.Status = StatusBorrowed
	}
}

// BookStatistics is the aggregated view of the whole inventory.
type BookStatistics struct {
	TotalBooks     int64 `json:"totalBooks"`
	TotalStock     int64 `json:"totalStock"`
	AvailableBooks int64 `json:"availableBooks"`
	BorrowedBooks  int64 `json:"borrowedBooks"`
}

// BookStorage defines possible operations on book entity.
//
// Update loads the record, applies mutate and persists the result as a
// single atomic read-modify-write. When mutate fails nothing is persisted
// and its error is returned as is.
type BookStorage interface {
	Add(ctx context.Context, book Book) (Book, error)
	GetOne(ctx context.Context, id int64) (Book, error)
	Update(ctx context.Context, id int64, mutate func(*Book) error) (Book, error)
	Delete(ctx context.Context, id int64) error
	GetAll(ctx context.Context) ([]Book, error)
	Find(ctx context.Context, filter BookFilter) ([]Book, error)
	Statistics(ctx context.Context) (BookStatistics, error)
	Close() error
}
