package main

import (
	"sort"
	"strings"
)

// BookOrder defines how a filtered list of books is sorted.
type BookOrder int

const (
	OrderByID BookOrder = iota
	OrderByStockAsc
	OrderByYearDesc
)

// BookFilter describes a query over the books collection. Every non-zero
// criterion must hold for a book to match. Text criteria are case-insensitive.
type BookFilter struct {
	ISBN     *string    // exact isbn
	Keyword  string     // contained in title, author or category
	Title    string     // contained in title
	Author   string     // contained in author
	Category string     // equal to category
	Status   BookStatus // exact status
	MinPrice *float64
	MaxPrice *float64
	MaxStock *int
	MinYear  *int
	OrderBy  BookOrder
}

// Matches reports whether book satisfies all criteria of the filter.
func (f BookFilter) Matches(book Book) bool {
	if f.ISBN != nil && (book.ISBN == nil || *book.ISBN != *f.ISBN) {
		return false
	}
	if f.Keyword != "" &&
		!containsFold(book.Title, f.Keyword) &&
		!containsFold(book.Author, f.Keyword) &&
		!containsFold(deref(book.Category), f.Keyword) {
		return false
	}
	if f.Title != "" && !containsFold(book.Title, f.Title) {
		return false
	}
	if f.Author != "" && !containsFold(book.Author, f.Author) {
		return false
	}
	if f.Category != "" && (book.Category == nil || !strings.EqualFold(*book.Category, f.Category)) {
		return false
	}
	if f.Status != "" && book.Status != f.Status {
		return false
	}
	if f.MinPrice != nil && (book.Price == nil || *book.Price < *f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && (book.Price == nil || *book.Price > *f.MaxPrice) {
		return false
	}
	if f.MaxStock != nil && book.StockQuantity > *f.MaxStock {
		return false
	}
	if f.MinYear != nil && (book.PublicationYear == nil || *book.PublicationYear < *f.MinYear) {
		return false
	}
	return true
}

// Sort orders books in place following the filter order. Ties are broken by id.
func (f BookFilter) Sort(books []Book) {
	sort.SliceStable(books, func(i, j int) bool {
		a, b := books[i], books[j]
		switch f.OrderBy {
		case OrderByStockAsc:
			if a.StockQuantity != b.StockQuantity {
				return a.StockQuantity < b.StockQuantity
			}
		case OrderByYearDesc:
			ay, by := derefInt(a.PublicationYear), derefInt(b.PublicationYear)
			if ay != by {
				return ay > by
			}
		}
		return a.ID < b.ID
	})
}

// FilterBooks returns the sorted subset of books matching the filter. It is
// used by the key-value backends which cannot evaluate queries server side.
func FilterBooks(books []Book, f BookFilter) []Book {
	matched := []Book{}
	for _, b := range books {
		if f.Matches(b) {
			matched = append(matched, b)
		}
	}
	f.Sort(matched)
	return matched
}

// ComputeStatistics aggregates the inventory figures over books.
func ComputeStatistics(books []Book) BookStatistics {
	var stats BookStatistics
	for _, b := range books {
		stats.TotalBooks++
		stats.TotalStock += int64(b.StockQuantity)
		switch b.Status {
		case StatusAvailable:
			stats.AvailableBooks++
		case StatusBorrowed:
			stats.BorrowedBooks++
		}
	}
	return stats
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
