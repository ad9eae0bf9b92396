package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// sendResponse writes the success envelope.
func (api *APIHandler) sendResponse(w http.ResponseWriter, r *http.Request, status int, message string, total *int, data interface{}) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	resp := GenericResponse(requestID, status, message, total, data)
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send response", zap.Error(err))
	}
}

// sendBooks writes a collection of books with its size.
func (api *APIHandler) sendBooks(w http.ResponseWriter, r *http.Request, message string, books []Book) {
	total := len(books)
	api.sendResponse(w, r, http.StatusOK, message, &total, books)
}

// sendError writes the error envelope.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	errResp := NewAPIError(requestID, status, message, data)
	if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send error response", zap.Error(err))
	}
}

// sendBookError maps a service error to its status code. Validation errors carry the
// invalid fields, business errors carry their description, others stay internal.
func (api *APIHandler) sendBookError(w http.ResponseWriter, r *http.Request, err error, message string, notFoundStatus int) {
	logger := api.GetLoggerFromContext(r.Context())
	var verrs ValidationErrors
	switch {
	case errors.As(err, &verrs):
		logger.Info(message, zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, message, verrs)
	case errors.Is(err, ErrBookNotFound):
		logger.Info(message, zap.Error(err))
		api.sendError(w, r, notFoundStatus, message, err.Error())
	case IsBusinessError(err):
		logger.Info(message, zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, message, err.Error())
	default:
		logger.Error(message, zap.Error(err))
		api.sendError(w, r, http.StatusInternalServerError, message, EmptyData)
	}
}

// bookID reads the id path parameter. It answers the client when the id is invalid.
func (api *APIHandler) bookID(w http.ResponseWriter, r *http.Request, ps httprouter.Params, message string) (int64, bool) {
	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Info(message, zap.String("book.id", ps.ByName("id")), zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, message, err.Error())
		return 0, false
	}
	return id, true
}

// decodeBookRequest reads and validates the request body. It answers the client on failure.
func (api *APIHandler) decodeBookRequest(w http.ResponseWriter, r *http.Request, message string) (BookRequest, bool) {
	var req BookRequest
	if err := DecodeBookRequestBody(r, &req); err != nil {
		api.GetLoggerFromContext(r.Context()).Info(message, zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, message, "invalid request body: "+err.Error())
		return req, false
	}
	if err := req.Validate(); err != nil {
		api.sendBookError(w, r, err, message, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// CreateBook registers a new book.
//
//	@Summary	Create a book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		book	body		BookRequest	true	"book to create"
//	@Success	201		{object}	APIResponse
//	@Failure	400		{object}	APIError
//	@Router		/books [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, ok := api.decodeBookRequest(w, r, "failed to create the book")
	if !ok {
		return
	}
	book, err := api.bookService.Add(r.Context(), req)
	if err != nil {
		api.sendBookError(w, r, err, "failed to create the book", http.StatusBadRequest)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to create book", zap.Int64("book.id", book.ID))
	api.sendResponse(w, r, http.StatusCreated, "Book created successfully.", nil, book)
}

// GetAllBooks lists every book ordered by id.
//
//	@Summary	List all books
//	@Tags		books
//	@Produce	json
//	@Success	200	{object}	APIResponse
//	@Router		/books [get]
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	books, err := api.bookService.GetAll(r.Context())
	if err != nil {
		api.sendBookError(w, r, err, "failed to get all books", http.StatusNotFound)
		return
	}
	api.sendBooks(w, r, "All books fetched successfully.", books)
}

// BookResource serves GET /books/:id where the segment is either one of
// the named collection queries or a numeric book id.
func (api *APIHandler) BookResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	switch ps.ByName("id") {
	case "search":
		api.SearchBooks(w, r, ps)
	case "low-stock":
		api.GetLowStockBooks(w, r, ps)
	case "statistics":
		api.GetBookStatistics(w, r, ps)
	case "recent":
		api.GetRecentBooks(w, r, ps)
	case "price-range":
		api.GetBooksByPriceRange(w, r, ps)
	default:
		api.GetOneBook(w, r, ps)
	}
}

// GetOneBook fetches a book by its id.
//
//	@Summary	Get a book
//	@Tags		books
//	@Produce	json
//	@Param		id	path		int	true	"book id"
//	@Success	200	{object}	APIResponse
//	@Failure	404	{object}	APIError
//	@Router		/books/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := api.bookID(w, r, ps, "failed to get the book")
	if !ok {
		return
	}
	book, err := api.bookService.GetOne(r.Context(), id)
	if err != nil {
		api.sendBookError(w, r, err, "failed to get the book", http.StatusNotFound)
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Book fetched successfully.", nil, book)
}

// UpdateBook replaces the content of an existing book.
//
//	@Summary	Update a book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int			true	"book id"
//	@Param		book	body		BookRequest	true	"new book content"
//	@Success	200		{object}	APIResponse
//	@Failure	400		{object}	APIError
//	@Failure	404		{object}	APIError
//	@Router		/books/{id} [put]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := api.bookID(w, r, ps, "failed to update the book")
	if !ok {
		return
	}
	req, ok := api.decodeBookRequest(w, r, "failed to update the book")
	if !ok {
		return
	}
	book, err := api.bookService.Update(r.Context(), id, req)
	if err != nil {
		api.sendBookError(w, r, err, "failed to update the book", http.StatusNotFound)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to update book", zap.Int64("book.id", id))
	api.sendResponse(w, r, http.StatusOK, "Book updated successfully.", nil, book)
}

// DeleteOneBook removes a book for good.
//
//	@Summary	Delete a book
//	@Tags		books
//	@Param		id	path	int	true	"book id"
//	@Success	204
//	@Failure	404	{object}	APIError
//	@Router		/books/{id} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := api.bookID(w, r, ps, "failed to delete the book")
	if !ok {
		return
	}
	if err := api.bookService.Delete(r.Context(), id); err != nil {
		api.sendBookError(w, r, err, "failed to delete the book", http.StatusNotFound)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to delete book", zap.Int64("book.id", id))
	api.sendResponse(w, r, http.StatusNoContent, "Book deleted successfully.", nil, nil)
}

// SearchBooks looks the keyword up in titles, authors and categories.
//
//	@Summary	Search books
//	@Tags		books
//	@Produce	json
//	@Param		keyword	query		string	true	"keyword"
//	@Success	200		{object}	APIResponse
//	@Failure	400		{object}	APIError
//	@Router		/books/search [get]
func (api *APIHandler) SearchBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		api.sendError(w, r, http.StatusBadRequest, "failed to search books", "keyword is required")
		return
	}
	books, err := api.bookService.Search(r.Context(), keyword)
	if err != nil {
		api.sendBookError(w, r, err, "failed to search books", http.StatusNotFound)
		return
	}
	api.sendBooks(w, r, "Books searched successfully.", books)
}

// BookLookup serves GET /books/:id/:value for the lookups by a single attribute.
func (api *APIHandler) BookLookup(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var (
		books []Book
		err   error
	)
	value := ps.ByName("value")
	ctx := r.Context()
	switch ps.ByName("id") {
	case "title":
		books, err = api.bookService.GetByTitle(ctx, value)
	case "author":
		books, err = api.bookService.GetByAuthor(ctx, value)
	case "category":
		books, err = api.bookService.GetByCategory(ctx, value)
	case "isbn":
		books, err = api.bookService.GetByISBN(ctx, value)
	case "status":
		var status BookStatus
		if status, err = ParseBookStatus(value); err == nil {
			books, err = api.bookService.GetByStatus(ctx, status)
		}
	default:
		api.NotFound().ServeHTTP(w, r)
		return
	}
	if err != nil {
		api.sendBookError(w, r, err, "failed to get books by "+ps.ByName("id"), http.StatusNotFound)
		return
	}
	api.sendBooks(w, r, "Books fetched successfully.", books)
}

// GetLowStockBooks lists the books which need a restock.
//
//	@Summary	Books with low stock
//	@Tags		books
//	@Produce	json
//	@Success	200	{object}	APIResponse
//	@Router		/books/low-stock [get]
func (api *APIHandler) GetLowStockBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	books, err := api.bookService.GetLowStock(r.Context())
	if err != nil {
		api.sendBookError(w, r, err, "failed to get low stock books", http.StatusNotFound)
		return
	}
	api.sendBooks(w, r, "Low stock books fetched successfully.", books)
}

func (api *APIHandler) GetRecentBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	year, err := ParseIntQuery(r, "year")
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "failed to get recent books", err.Error())
		return
	}
	books, err := api.bookService.GetRecent(r.Context(), year)
	if err != nil {
		api.sendBookError(w, r, err, "failed to get recent books", http.StatusNotFound)
		return
	}
	api.sendBooks(w, r, "Recent books fetched successfully.", books)
}

func (api *APIHandler) GetBooksByPriceRange(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	minPrice, err := ParseFloatQuery(r, "min")
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "failed to get books by price range", err.Error())
		return
	}
	maxPrice, err := ParseFloatQuery(r, "max")
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "failed to get books by price range", err.Error())
		return
	}
	if minPrice > maxPrice {
		api.sendError(w, r, http.StatusBadRequest, "failed to get books by price range", "min must not be greater than max")
		return
	}
	books, err := api.bookService.GetByPriceRange(r.Context(), minPrice, maxPrice)
	if err != nil {
		api.sendBookError(w, r, err, "failed to get books by price range", http.StatusNotFound)
		return
	}
	api.sendBooks(w, r, "Books fetched successfully.", books)
}

// GetBookStatistics summarizes the inventory.
//
//	@Summary	Inventory statistics
//	@Tags		books
//	@Produce	json
//	@Success	200	{object}	APIResponse
//	@Router		/books/statistics [get]
func (api *APIHandler) GetBookStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := api.bookService.Statistics(r.Context())
	if err != nil {
		api.sendBookError(w, r, err, "failed to get books statistics", http.StatusNotFound)
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Books statistics fetched successfully.", nil, stats)
}

// BookStockAction serves POST /books/:id/:action for the stock adjustments.
//
//	@Summary	Adjust the stock of a book
//	@Tags		books
//	@Produce	json
//	@Param		id			path		int		true	"book id"
//	@Param		action		path		string	true	"add-stock or reduce-stock"
//	@Param		quantity	query		int		true	"number of copies"
//	@Success	200			{object}	APIResponse
//	@Failure	400			{object}	APIError
//	@Router		/books/{id}/{action} [post]
func (api *APIHandler) BookStockAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var adjust func(context.Context, int64, int) (Book, error)
	var message string
	switch ps.ByName("action") {
	case "add-stock":
		adjust, message = api.bookService.AddStock, "failed to add stock"
	case "reduce-stock":
		adjust, message = api.bookService.ReduceStock, "failed to reduce stock"
	default:
		api.NotFound().ServeHTTP(w, r)
		return
	}

	id, ok := api.bookID(w, r, ps, message)
	if !ok {
		return
	}
	quantity, err := ParseQuantity(r)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, message, err.Error())
		return
	}
	book, err := adjust(r.Context(), id, quantity)
	if err != nil {
		api.sendBookError(w, r, err, message, http.StatusBadRequest)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to adjust stock",
		zap.Int64("book.id", id),
		zap.String("book.action", ps.ByName("action")),
		zap.Int("book.stock", book.StockQuantity),
	)
	api.sendResponse(w, r, http.StatusOK, "Stock updated successfully.", nil, book)
}
