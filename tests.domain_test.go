package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBook_AddStock(t *testing.T) {
	book := Book{StockQuantity: 0, Status: StatusBorrowed}
	book.AddStock(3)
	assert.Equal(t, 3, book.StockQuantity)
	assert.Equal(t, StatusAvailable, book.Status)
}

func TestBook_ReduceStock(t *testing.T) {
	t.Run("should pass: enough copies", func(t *testing.T) {
		book := Book{StockQuantity: 5, Status: StatusAvailable}
		require.NoError(t, book.ReduceStock(2))
		assert.Equal(t, 3, book.StockQuantity)
		assert.Equal(t, StatusAvailable, book.Status)
	})

	t.Run("should pass: last copies", func(t *testing.T) {
		book := Book{StockQuantity: 2, Status: StatusAvailable}
		require.NoError(t, book.ReduceStock(2))
		assert.Equal(t, 0, book.StockQuantity)
		assert.Equal(t, StatusBorrowed, book.Status)
	})

	t.Run("should fail: not enough copies", func(t *testing.T) {
		book := Book{StockQuantity: 3, Status: StatusReserved}
		err := book.ReduceStock(5)
		assert.True(t, errors.Is(err, ErrInsufficientStock))
		assert.Equal(t, "insufficient stock. available stock: 3", err.Error())
		assert.Equal(t, 3, book.StockQuantity)
		assert.Equal(t, StatusReserved, book.Status)
	})
}

func TestParseBookStatus(t *testing.T) {
	testCases := []struct {
		value    string
		expected BookStatus
		valid    bool
	}{
		{"AVAILABLE", StatusAvailable, true},
		{"borrowed", StatusBorrowed, true},
		{" Lost ", StatusLost, true},
		{"damaged", StatusDamaged, true},
		{"reserved", StatusReserved, true},
		{"SOLD", "", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			status, err := ParseBookStatus(tc.value)
			if !tc.valid {
				assert.True(t, errors.Is(err, ErrInvalidStatus))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, status)
		})
	}
}

func TestIsBusinessError(t *testing.T) {
	assert.True(t, IsBusinessError(ErrBookNotFound))
	assert.True(t, IsBusinessError(ErrInvalidQuantity))
	assert.True(t, IsBusinessError(errors.Join(errors.New("ctx"), ErrDuplicateISBN)))
	assert.False(t, IsBusinessError(errors.New("storage failure")))
}

func filterTestBooks() []Book {
	return []Book{
		{ID: 1, Title: "Go in Action", Author: "William Kennedy", Category: strPtr("Programming"), ISBN: strPtr("9781617291784"), StockQuantity: 7, Price: floatPtr(30), PublicationYear: intPtr(2015), Status: StatusAvailable},
		{ID: 2, Title: "Dune", Author: "Frank Herbert", Category: strPtr("Science Fiction"), StockQuantity: 2, Price: floatPtr(12.5), PublicationYear: intPtr(1965), Status: StatusAvailable},
		{ID: 3, Title: "The Go Programming Language", Author: "Alan Donovan", Category: strPtr("Programming"), StockQuantity: 0, PublicationYear: intPtr(2015), Status: StatusBorrowed},
		{ID: 4, Title: "Foundation", Author: "Isaac Asimov", StockQuantity: 5, Price: floatPtr(9.99), PublicationYear: intPtr(2021), Status: StatusLost},
	}
}

func bookIDs(books []Book) []int64 {
	ids := make([]int64, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestFilterBooks(t *testing.T) {
	testCases := []struct {
		name     string
		filter   BookFilter
		expected []int64
	}{
		{"no criteria", BookFilter{}, []int64{1, 2, 3, 4}},
		{"keyword in title", BookFilter{Keyword: "go"}, []int64{1, 3}},
		{"keyword in category", BookFilter{Keyword: "fiction"}, []int64{2}},
		{"keyword in author", BookFilter{Keyword: "ASIMOV"}, []int64{4}},
		{"title contains", BookFilter{Title: "language"}, []int64{3}},
		{"author contains", BookFilter{Author: "herb"}, []int64{2}},
		{"category equals", BookFilter{Category: "programming"}, []int64{1, 3}},
		{"category partial", BookFilter{Category: "program"}, []int64{}},
		{"isbn exact", BookFilter{ISBN: strPtr("9781617291784")}, []int64{1}},
		{"status", BookFilter{Status: StatusBorrowed}, []int64{3}},
		{"price range inclusive", BookFilter{MinPrice: floatPtr(9.99), MaxPrice: floatPtr(12.5)}, []int64{2, 4}},
		{"low stock", BookFilter{MaxStock: intPtr(LowStockThreshold), OrderBy: OrderByStockAsc}, []int64{3, 2, 4}},
		{"recent", BookFilter{MinYear: intPtr(2015), OrderBy: OrderByYearDesc}, []int64{4, 1, 3}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, bookIDs(FilterBooks(filterTestBooks(), tc.filter)))
		})
	}
}

func TestComputeStatistics(t *testing.T) {
	assert.Equal(t, BookStatistics{}, ComputeStatistics(nil))
	stats := ComputeStatistics(filterTestBooks())
	assert.Equal(t, BookStatistics{TotalBooks: 4, TotalStock: 14, AvailableBooks: 2, BorrowedBooks: 1}, stats)
}

func TestBookRequest_Validate(t *testing.T) {
	valid := func() BookRequest {
		return BookRequest{Title: "Dune", Author: "Frank Herbert"}
	}

	t.Run("should pass: minimal request", func(t *testing.T) {
		req := valid()
		assert.NoError(t, req.Validate())
	})

	t.Run("should pass: full request", func(t *testing.T) {
		status := StatusReserved
		req := valid()
		req.ISBN = strPtr("0441172717")
		req.PublicationYear = intPtr(1965)
		req.Category = strPtr("Science Fiction")
		req.Description = strPtr("Desert planet.")
		req.StockQuantity = intPtr(0)
		req.Price = floatPtr(0)
		req.Status = &status
		assert.NoError(t, req.Validate())
	})

	t.Run("should pass: publication year bounds are inclusive", func(t *testing.T) {
		for _, year := range []int{1000, 2025} {
			req := valid()
			req.PublicationYear = intPtr(year)
			assert.NoError(t, req.Validate(), "year %d", year)
		}
	})

	testCases := []struct {
		name    string
		mutate  func(*BookRequest)
		field   string
		message string
	}{
		{"blank title", func(r *BookRequest) { r.Title = "   " }, "title", "title is required"},
		{"long title", func(r *BookRequest) { r.Title = strings.Repeat("a", 256) }, "title", "title must be between 1 and 255 characters"},
		{"missing author", func(r *BookRequest) { r.Author = "" }, "author", "author is required"},
		{"short isbn", func(r *BookRequest) { r.ISBN = strPtr("12345") }, "isbn", "isbn must be 10 or 13 digits"},
		{"empty isbn", func(r *BookRequest) { r.ISBN = strPtr("") }, "isbn", "isbn must be 10 or 13 digits"},
		{"isbn with letters", func(r *BookRequest) { r.ISBN = strPtr("97816172917X4") }, "isbn", "isbn must be 10 or 13 digits"},
		{"old year", func(r *BookRequest) { r.PublicationYear = intPtr(999) }, "publicationYear", "publication year must be between 1000 and 2025"},
		{"future year", func(r *BookRequest) { r.PublicationYear = intPtr(2026) }, "publicationYear", "publication year must be between 1000 and 2025"},
		{"long category", func(r *BookRequest) { r.Category = strPtr(strings.Repeat("c", 101)) }, "category", "category must not exceed 100 characters"},
		{"long description", func(r *BookRequest) { r.Description = strPtr(strings.Repeat("d", 2001)) }, "description", "description must not exceed 2000 characters"},
		{"negative stock", func(r *BookRequest) { r.StockQuantity = intPtr(-1) }, "stockQuantity", "stock quantity cannot be negative"},
		{"negative price", func(r *BookRequest) { r.Price = floatPtr(-0.5) }, "price", "price cannot be negative"},
		{"unknown status", func(r *BookRequest) { s := BookStatus("SOLD"); r.Status = &s }, "status", "status must be one of AVAILABLE, BORROWED, RESERVED, LOST, DAMAGED"},
	}
	for _, tc := range testCases {
		t.Run("should fail: "+tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)
			err := req.Validate()
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tc.message, verrs[tc.field])
		})
	}

	t.Run("should fail: all violations reported", func(t *testing.T) {
		req := BookRequest{Price: floatPtr(-1)}
		err := req.Validate()
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Len(t, verrs, 3)
		assert.Equal(t, "validation failed: author: author is required; price: price cannot be negative; title: title is required", err.Error())
	})
}

func TestBookRequest_NewBook(t *testing.T) {
	book := BookRequest{Title: "Dune", Author: "Frank Herbert"}.NewBook()
	assert.Equal(t, 0, book.StockQuantity)
	assert.Equal(t, StatusAvailable, book.Status)
	assert.Nil(t, book.ISBN)

	status := StatusDamaged
	book = BookRequest{Title: "Dune", Author: "Frank Herbert", StockQuantity: intPtr(4), Status: &status}.NewBook()
	assert.Equal(t, 4, book.StockQuantity)
	assert.Equal(t, StatusDamaged, book.Status)
}

func TestBookRequest_ApplyTo(t *testing.T) {
	book := Book{ID: 9, Title: "Old", Author: "Someone", ISBN: strPtr("0441172717"), StockQuantity: 6, Status: StatusReserved}
	BookRequest{Title: "New", Author: "Other", Price: floatPtr(3)}.ApplyTo(&book)
	assert.Equal(t, int64(9), book.ID)
	assert.Equal(t, "New", book.Title)
	assert.Equal(t, "Other", book.Author)
	assert.Nil(t, book.ISBN)
	assert.Equal(t, 3.0, *book.Price)
	assert.Equal(t, 6, book.StockQuantity)
	assert.Equal(t, StatusReserved, book.Status)
}
