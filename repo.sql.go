package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	TableBooks = "books"

	colID              = "id"
	colTitle           = "title"
	colAuthor          = "author"
	colISBN            = "isbn"
	colPublicationYear = "publication_year"
	colCategory        = "category"
	colDescription     = "description"
	colStockQuantity   = "stock_quantity"
	colPrice           = "price"
	colStatus          = "status"
	colCreatedAt       = "created_at"
	colUpdatedAt       = "updated_at"

	pgUniqueViolation = "23505"
)

var bookColumns = []interface{}{
	colID, colTitle, colAuthor, colISBN, colPublicationYear, colCategory,
	colDescription, colStockQuantity, colPrice, colStatus, colCreatedAt, colUpdatedAt,
}

// sqlDialect binds a database/sql driver to its goqu dialect and schema.
type sqlDialect struct {
	driver    string
	goqu      string
	returning bool
	locking   bool
	schema    []string
}

var (
	postgresDialect = sqlDialect{
		driver:    "pgx",
		goqu:      "postgres",
		returning: true,
		locking:   true,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS books (
				id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
				title VARCHAR(255) NOT NULL,
				author VARCHAR(255) NOT NULL,
				isbn VARCHAR(13),
				publication_year INTEGER,
				category VARCHAR(100),
				description VARCHAR(2000),
				stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
				price DOUBLE PRECISION CHECK (price >= 0),
				status VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS books_isbn_key ON books (isbn) WHERE isbn IS NOT NULL`,
		},
	}

	sqliteDialect = sqlDialect{
		driver: "sqlite",
		goqu:   "sqlite3",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				isbn TEXT,
				publication_year INTEGER,
				category TEXT,
				description TEXT,
				stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
				price REAL CHECK (price >= 0),
				status TEXT NOT NULL DEFAULT 'AVAILABLE',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS books_isbn_key ON books (isbn) WHERE isbn IS NOT NULL`,
		},
	}
)

type sqlBookStorage struct {
	logger  *zap.Logger
	db      *sqlx.DB
	dialect sqlDialect
	builder goqu.DialectWrapper
}

// GetPostgresClient opens and checks a pool of connections to the postgres server.
func GetPostgresClient(ctx context.Context, config *Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, config.Storage.ConnectTimeout)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, postgresDialect.driver, config.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(config.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(config.Postgres.ConnMaxLifetime)
	return db, nil
}

// GetSQLiteClient opens the sqlite database file. A single connection is
// used so that writers never compete for the database lock.
func GetSQLiteClient(ctx context.Context, config *Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		config.SQLite.FilePath, config.SQLite.BusyTimeout.Milliseconds())
	ctx, cancel := context.WithTimeout(ctx, config.Storage.ConnectTimeout)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewPostgresBookStorage provides a postgres-based book storage with its schema in place.
func NewPostgresBookStorage(ctx context.Context, logger *zap.Logger, db *sqlx.DB) (BookStorage, error) {
	return newSQLBookStorage(ctx, logger, db, postgresDialect)
}

// NewSQLiteBookStorage provides a sqlite-based book storage with its schema in place.
func NewSQLiteBookStorage(ctx context.Context, logger *zap.Logger, db *sqlx.DB) (BookStorage, error) {
	return newSQLBookStorage(ctx, logger, db, sqliteDialect)
}

func newSQLBookStorage(ctx context.Context, logger *zap.Logger, db *sqlx.DB, dialect sqlDialect) (*sqlBookStorage, error) {
	for _, stmt := range dialect.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to set up %s schema: %w", dialect.goqu, err)
		}
	}
	return &sqlBookStorage{
		logger:  logger,
		db:      db,
		dialect: dialect,
		builder: goqu.Dialect(dialect.goqu),
	}, nil
}

// Close releases the connections pool.
func (ss *sqlBookStorage) Close() error {
	return ss.db.Close()
}

// Add inserts a new book record and returns it with its assigned id.
func (ss *sqlBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	ds := ss.builder.Insert(TableBooks).Prepared(true).Rows(bookRecord(book))
	if ss.dialect.returning {
		query, args, err := ds.Returning(colID).ToSQL()
		if err != nil {
			return book, fmt.Errorf("sql: build insert: %w", err)
		}
		if err = ss.db.QueryRowxContext(ctx, query, args...).Scan(&book.ID); err != nil {
			return book, ss.wrapWriteError(err, book)
		}
		return book, nil
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return book, fmt.Errorf("sql: build insert: %w", err)
	}
	res, err := ss.db.ExecContext(ctx, query, args...)
	if err != nil {
		return book, ss.wrapWriteError(err, book)
	}
	if book.ID, err = res.LastInsertId(); err != nil {
		return book, fmt.Errorf("sql: read inserted id: %w", err)
	}
	return book, nil
}

// GetOne retrieves a book record based on its ID.
func (ss *sqlBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	var book Book
	query, args, err := ss.selectByID(id).ToSQL()
	if err != nil {
		return book, fmt.Errorf("sql: build select: %w", err)
	}
	err = ss.db.GetContext(ctx, &book, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("sql: get book %d: %w", id, err)
	}
	return normalizeBook(book), nil
}

// Update locks the record inside a transaction, applies mutate then saves the result.
func (ss *sqlBookStorage) Update(ctx context.Context, id int64, mutate func(*Book) error) (book Book, err error) {
	tx, err := ss.db.BeginTxx(ctx, nil)
	if err != nil {
		return book, fmt.Errorf("sql: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				ss.logger.Error("sql: failed to rollback transaction", zap.Int64("book.id", id), zap.Error(rerr))
			}
		}
	}()

	sel := ss.selectByID(id)
	if ss.dialect.locking {
		sel = sel.ForUpdate(exp.Wait)
	}
	query, args, err := sel.ToSQL()
	if err != nil {
		return book, fmt.Errorf("sql: build select: %w", err)
	}
	if err = tx.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, ErrBookNotFound
		}
		return Book{}, fmt.Errorf("sql: get book %d: %w", id, err)
	}
	book = normalizeBook(book)

	if err = mutate(&book); err != nil {
		return book, err
	}

	query, args, err = ss.builder.Update(TableBooks).Prepared(true).
		Set(bookRecord(book)).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if err != nil {
		return book, fmt.Errorf("sql: build update: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return book, ss.wrapWriteError(err, book)
	}
	if err = tx.Commit(); err != nil {
		return book, fmt.Errorf("sql: commit update of book %d: %w", id, err)
	}
	return book, nil
}

// Delete removes a book record based on its ID.
func (ss *sqlBookStorage) Delete(ctx context.Context, id int64) error {
	query, args, err := ss.builder.Delete(TableBooks).Prepared(true).Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("sql: build delete: %w", err)
	}
	res, err := ss.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sql: delete book %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sql: delete book %d: %w", id, err)
	}
	if n == 0 {
		return ErrBookNotFound
	}
	return nil
}

// GetAll retrieves all books ordered by id.
func (ss *sqlBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	return ss.Find(ctx, BookFilter{})
}

// Find translates the filter into a single select statement.
func (ss *sqlBookStorage) Find(ctx context.Context, filter BookFilter) ([]Book, error) {
	ds := ss.builder.From(TableBooks).Prepared(true).Select(bookColumns...)
	if exprs := filterExpressions(filter); len(exprs) > 0 {
		ds = ds.Where(exprs...)
	}
	ds = ds.Order(orderExpressions(filter.OrderBy)...)

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("sql: build select: %w", err)
	}
	books := []Book{}
	if err = ss.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("sql: find books: %w", err)
	}
	for i := range books {
		books[i] = normalizeBook(books[i])
	}
	return books, nil
}

// Statistics aggregates the inventory figures on the database side.
func (ss *sqlBookStorage) Statistics(ctx context.Context) (BookStatistics, error) {
	var stats BookStatistics
	query, args, err := ss.builder.From(TableBooks).Prepared(true).Select(
		goqu.COUNT(goqu.Star()).As("total_books"),
		goqu.COALESCE(goqu.SUM(colStockQuantity), 0).As("total_stock"),
	).ToSQL()
	if err != nil {
		return stats, fmt.Errorf("sql: build statistics: %w", err)
	}
	var totals struct {
		TotalBooks int64 `db:"total_books"`
		TotalStock int64 `db:"total_stock"`
	}
	if err = ss.db.GetContext(ctx, &totals, query, args...); err != nil {
		return stats, fmt.Errorf("sql: count books: %w", err)
	}
	stats.TotalBooks, stats.TotalStock = totals.TotalBooks, totals.TotalStock

	query, args, err = ss.builder.From(TableBooks).Prepared(true).
		Select(goqu.C(colStatus), goqu.COUNT(goqu.Star()).As("total")).
		GroupBy(goqu.C(colStatus)).
		ToSQL()
	if err != nil {
		return stats, fmt.Errorf("sql: build statistics: %w", err)
	}
	var counts []struct {
		Status BookStatus `db:"status"`
		Total  int64      `db:"total"`
	}
	if err = ss.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return stats, fmt.Errorf("sql: count books by status: %w", err)
	}
	for _, c := range counts {
		switch c.Status {
		case StatusAvailable:
			stats.AvailableBooks = c.Total
		case StatusBorrowed:
			stats.BorrowedBooks = c.Total
		}
	}
	return stats, nil
}

func (ss *sqlBookStorage) selectByID(id int64) *goqu.SelectDataset {
	return ss.builder.From(TableBooks).Prepared(true).Select(bookColumns...).Where(goqu.C(colID).Eq(id))
}

func (ss *sqlBookStorage) wrapWriteError(err error, book Book) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateISBN, deref(book.ISBN))
	}
	return fmt.Errorf("sql: save book: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func bookRecord(b Book) goqu.Record {
	return goqu.Record{
		colTitle:           b.Title,
		colAuthor:          b.Author,
		colISBN:            nullable(b.ISBN),
		colPublicationYear: nullable(b.PublicationYear),
		colCategory:        nullable(b.Category),
		colDescription:     nullable(b.Description),
		colStockQuantity:   b.StockQuantity,
		colPrice:           nullable(b.Price),
		colStatus:          string(b.Status),
		colCreatedAt:       b.CreatedAt.UTC(),
		colUpdatedAt:       b.UpdatedAt.UTC(),
	}
}

func nullable[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// normalizeBook drops the driver specific location of timestamps.
func normalizeBook(b Book) Book {
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b
}

func lower(col string) exp.SQLFunctionExpression {
	return goqu.Func("LOWER", goqu.C(col))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s literally anywhere in the value.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// likeFold is a case insensitive LIKE where the wildcards of the
// pattern are escaped with a backslash.
func likeFold(col, s string) exp.LiteralExpression {
	return goqu.L(`? LIKE ? ESCAPE '\'`, lower(col), containsPattern(s))
}

func filterExpressions(f BookFilter) []exp.Expression {
	var exprs []exp.Expression
	if f.ISBN != nil {
		exprs = append(exprs, goqu.C(colISBN).Eq(*f.ISBN))
	}
	if f.Keyword != "" {
		exprs = append(exprs, goqu.Or(
			likeFold(colTitle, f.Keyword),
			likeFold(colAuthor, f.Keyword),
			likeFold(colCategory, f.Keyword),
		))
	}
	if f.Title != "" {
		exprs = append(exprs, likeFold(colTitle, f.Title))
	}
	if f.Author != "" {
		exprs = append(exprs, likeFold(colAuthor, f.Author))
	}
	if f.Category != "" {
		exprs = append(exprs, lower(colCategory).Eq(strings.ToLower(f.Category)))
	}
	if f.Status != "" {
		exprs = append(exprs, goqu.C(colStatus).Eq(string(f.Status)))
	}
	if f.MinPrice != nil {
		exprs = append(exprs, goqu.C(colPrice).Gte(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		exprs = append(exprs, goqu.C(colPrice).Lte(*f.MaxPrice))
	}
	if f.MaxStock != nil {
		exprs = append(exprs, goqu.C(colStockQuantity).Lte(*f.MaxStock))
	}
	if f.MinYear != nil {
		exprs = append(exprs, goqu.C(colPublicationYear).Gte(*f.MinYear))
	}
	return exprs
}

func orderExpressions(order BookOrder) []exp.OrderedExpression {
	switch order {
	case OrderByStockAsc:
		return []exp.OrderedExpression{goqu.C(colStockQuantity).Asc(), goqu.C(colID).Asc()}
	case OrderByYearDesc:
		return []exp.OrderedExpression{goqu.C(colPublicationYear).Desc(), goqu.C(colID).Asc()}
	default:
		return []exp.OrderedExpression{goqu.C(colID).Asc()}
	}
}
