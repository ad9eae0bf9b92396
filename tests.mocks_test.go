package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	AddFunc        func(ctx context.Context, book Book) (Book, error)
	GetOneFunc     func(ctx context.Context, id int64) (Book, error)
	UpdateFunc     func(ctx context.Context, id int64, mutate func(*Book) error) (Book, error)
	DeleteFunc     func(ctx context.Context, id int64) error
	GetAllFunc     func(ctx context.Context) ([]Book, error)
	FindFunc       func(ctx context.Context, filter BookFilter) ([]Book, error)
	StatisticsFunc func(ctx context.Context) (BookStatistics, error)
	CloseFunc      func() error
}

// Add mocks the behavior of book creation by the repository.
func (m *MockBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	return m.AddFunc(ctx, book)
}

// GetOne mocks the behavior of retrieving a book by the repository.
func (m *MockBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	return m.GetOneFunc(ctx, id)
}

// Update mocks the behavior of updating a book by the repository.
func (m *MockBookStorage) Update(ctx context.Context, id int64, mutate func(*Book) error) (Book, error) {
	return m.UpdateFunc(ctx, id, mutate)
}

// Delete mocks the behavior of deleting a book by the repository.
func (m *MockBookStorage) Delete(ctx context.Context, id int64) error {
	return m.DeleteFunc(ctx, id)
}

// GetAll mocks the behavior of retrieving all books by the repository.
func (m *MockBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	return m.GetAllFunc(ctx)
}

// Find mocks the behavior of filtering books by the repository.
func (m *MockBookStorage) Find(ctx context.Context, filter BookFilter) ([]Book, error) {
	return m.FindFunc(ctx, filter)
}

// Statistics mocks the inventory aggregation by the repository.
func (m *MockBookStorage) Statistics(ctx context.Context) (BookStatistics, error) {
	return m.StatisticsFunc(ctx)
}

func (m *MockBookStorage) Close() error {
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// Add moves the mocked time forward.
func (mck *MockClocker) Add(d time.Duration) {
	mck.MockNow = mck.MockNow.Add(d)
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}

// newTestAPIHandler builds an api handler on top of the given storage with mocked clock and ids.
func newTestAPIHandler(config *Config, storage BookStorage) *APIHandler {
	if config == nil {
		config = &Config{}
	}
	clock := NewMockClocker()
	bs := NewBookService(zap.NewNop(), config, clock, storage)
	return NewAPIHandler(zap.NewNop(), config, &Statistics{started: clock.Now()}, clock, NewMockUIDHandler("abc", true), bs)
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }
