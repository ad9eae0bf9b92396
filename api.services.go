package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BookServiceProvider exposes the book inventory use cases.
type BookServiceProvider interface {
	Add(ctx context.Context, req BookRequest) (Book, error)
	GetOne(ctx context.Context, id int64) (Book, error)
	Update(ctx context.Context, id int64, req BookRequest) (Book, error)
	Delete(ctx context.Context, id int64) error
	GetAll(ctx context.Context) ([]Book, error)
	Search(ctx context.Context, keyword string) ([]Book, error)
	GetByISBN(ctx context.Context, isbn string) ([]Book, error)
	GetByTitle(ctx context.Context, title string) ([]Book, error)
	GetByAuthor(ctx context.Context, author string) ([]Book, error)
	GetByCategory(ctx context.Context, category string) ([]Book, error)
	GetByStatus(ctx context.Context, status BookStatus) ([]Book, error)
	GetByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]Book, error)
	GetLowStock(ctx context.Context) ([]Book, error)
	GetRecent(ctx context.Context, year int) ([]Book, error)
	AddStock(ctx context.Context, id int64, quantity int) (Book, error)
	ReduceStock(ctx context.Context, id int64, quantity int) (Book, error)
	Statistics(ctx context.Context) (BookStatistics, error)
}

type BookService struct {
	logger  *zap.Logger
	config  *Config
	clock   Clocker
	storage BookStorage
}

func NewBookService(logger *zap.Logger, config *Config, clock Clocker, storage BookStorage) BookServiceProvider {
	return &BookService{
		logger:  logger,
		config:  config,
		clock:   clock,
		storage: storage,
	}
}

func (bs *BookService) now() time.Time {
	return bs.clock.Now().UTC().Truncate(time.Microsecond)
}

// Add creates a new book once its isbn is known to be free.
func (bs *BookService) Add(ctx context.Context, req BookRequest) (Book, error) {
	if err := bs.ensureISBNAvailable(ctx, req.ISBN, 0); err != nil {
		return Book{}, err
	}
	book := req.NewBook()
	book.CreatedAt = bs.now()
	book.UpdatedAt = book.CreatedAt
	book, err := bs.storage.Add(ctx, book)
	if err != nil {
		return book, err
	}
	bs.logger.Info("service: book created", zap.Int64("book.id", book.ID), zap.String("book.title", book.Title))
	return book, nil
}

func (bs *BookService) GetOne(ctx context.Context, id int64) (Book, error) {
	return bs.storage.GetOne(ctx, id)
}

// Update overwrites the book with the request content. The isbn is only
// checked for uniqueness against the other books when it changes.
func (bs *BookService) Update(ctx context.Context, id int64, req BookRequest) (Book, error) {
	existing, err := bs.storage.GetOne(ctx, id)
	if err != nil {
		return existing, err
	}
	if req.ISBN != nil && (existing.ISBN == nil || *existing.ISBN != *req.ISBN) {
		if err = bs.ensureISBNAvailable(ctx, req.ISBN, id); err != nil {
			return Book{}, err
		}
	}
	book, err := bs.storage.Update(ctx, id, func(b *Book) error {
		req.ApplyTo(b)
		b.UpdatedAt = bs.now()
		return nil
	})
	if err != nil {
		return book, err
	}
	bs.logger.Info("service: book updated", zap.Int64("book.id", id))
	return book, nil
}

func (bs *BookService) Delete(ctx context.Context, id int64) error {
	if err := bs.storage.Delete(ctx, id); err != nil {
		return err
	}
	bs.logger.Info("service: book deleted", zap.Int64("book.id", id))
	return nil
}

func (bs *BookService) GetAll(ctx context.Context) ([]Book, error) {
	return bs.storage.GetAll(ctx)
}

// Search returns books whose title, author or category contains the keyword.
func (bs *BookService) Search(ctx context.Context, keyword string) ([]Book, error) {
	return bs.storage.Find(ctx, BookFilter{Keyword: keyword})
}

func (bs *BookService) GetByISBN(ctx context.Context, isbn string) ([]Book, error) {
	return bs.storage.Find(ctx, BookFilter{ISBN: &isbn})
}

func (bs *BookService) GetByTitle(ctx context.Context, title string) ([]Book, error) {
	return bs.storage.Find(ctx, BookFilter{Title: title})
}

func (bs *BookService) GetByAuthor(ctx context.Context, author string) ([]Book, error) {
	return bs.storage.Find(ctx, BookFilter{Author: author})
}

func (bs *BookService) GetByCategory(ctx context.Context, category string) ([]Book, error) {
	return bs.storage.Find(ctx, BookFilter{Category: category})
}

func (bs *BookService) GetByStatus(ctx context.Context, status BookStatus) ([]Book, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return bs.storage.Find(ctx, BookFilter{Status: status})
}

// GetByPriceRange returns priced books within [minPrice, maxPrice].
func (bs *BookService) GetByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]Book, error) {
	return bs.storage.Find(ctx, BookFilter{MinPrice: &minPrice, MaxPrice: &maxPrice})
}

// GetLowStock returns books with a stock at or under LowStockThreshold, lowest stock first.
func (bs *BookService) GetLowStock(ctx context.Context) ([]Book, error) {
	threshold := LowStockThreshold
	return bs.storage.Find(ctx, BookFilter{MaxStock: &threshold, OrderBy: OrderByStockAsc})
}

// GetRecent returns books published from the given year, newest first.
func (bs *BookService) GetRecent(ctx context.Context, year int) ([]Book, error) {
	return bs.storage.Find(ctx, BookFilter{MinYear: &year, OrderBy: OrderByYearDesc})
}

// AddStock increases the number of copies of a book.
func (bs *BookService) AddStock(ctx context.Context, id int64, quantity int) (Book, error) {
	if quantity <= 0 {
		return Book{}, ErrInvalidQuantity
	}
	book, err := bs.storage.Update(ctx, id, func(b *Book) error {
		b.AddStock(quantity)
		b.UpdatedAt = bs.now()
		return nil
	})
	if err != nil {
		return book, err
	}
	bs.logger.Info("service: stock added", zap.Int64("book.id", id), zap.Int("book.quantity", quantity), zap.Int("book.stock", book.StockQuantity))
	return book, nil
}

// ReduceStock decreases the number of copies of a book. It fails without
// any change when the book does not hold enough copies.
func (bs *BookService) ReduceStock(ctx context.Context, id int64, quantity int) (Book, error) {
	if quantity <= 0 {
		return Book{}, ErrInvalidQuantity
	}
	book, err := bs.storage.Update(ctx, id, func(b *Book) error {
		if err := b.ReduceStock(quantity); err != nil {
			return err
		}
		b.UpdatedAt = bs.now()
		return nil
	})
	if err != nil {
		return book, err
	}
	bs.logger.Info("service: stock reduced", zap.Int64("book.id", id), zap.Int("book.quantity", quantity), zap.Int("book.stock", book.StockQuantity))
	return book, nil
}

func (bs *BookService) Statistics(ctx context.Context) (BookStatistics, error) {
	return bs.storage.Statistics(ctx)
}

// ensureISBNAvailable fails when another book than self already holds the isbn.
func (bs *BookService) ensureISBNAvailable(ctx context.Context, isbn *string, self int64) error {
	if isbn == nil {
		return nil
	}
	books, err := bs.storage.Find(ctx, BookFilter{ISBN: isbn})
	if err != nil {
		return err
	}
	for _, b := range books {
		if b.ID != self {
			return fmt.Errorf("%w: %s", ErrDuplicateISBN, *isbn)
		}
	}
	return nil
}
