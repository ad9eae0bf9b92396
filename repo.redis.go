package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxWatchAttempts bounds the optimistic retries on a single book key.
const maxWatchAttempts = 16

var errConcurrentUpdate = errors.New("book modified concurrently")

// redisBookStorage keeps each book as a json document under its own key.
// The sorted set holds the ids in ascending order and the isbn hash maps
// each isbn to the id of the book owning it. Ids come from a counter key.
type redisBookStorage struct {
	logger  *zap.Logger
	client  *redis.Client
	prefix  string
	counter string
	ids     string
	isbns   string
}

// NewRedisBookStorage provides an instance of redis-based book storage.
func NewRedisBookStorage(logger *zap.Logger, client *redis.Client, prefix string) BookStorage {
	return &redisBookStorage{
		logger:  logger,
		client:  client,
		prefix:  prefix,
		counter: prefix + ":seq",
		ids:     prefix + ":ids",
		isbns:   prefix + ":isbn",
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(ctx context.Context, config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	ctx, cancel := context.WithTimeout(ctx, config.Storage.ConnectTimeout)
	defer cancel()
	if pong, err := client.Ping(ctx).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// Close shuts down the redis client.
func (rs *redisBookStorage) Close() error {
	return rs.client.Close()
}

func (rs *redisBookStorage) bookKey(id string) string {
	return rs.prefix + ":book:" + id
}

// Add inserts a new book record with the next id of the counter. The isbn
// is claimed before the record is written and given back if the write fails.
func (rs *redisBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	id, err := rs.client.Incr(ctx, rs.counter).Result()
	if err != nil {
		return book, fmt.Errorf("redis: generate book id: %w", err)
	}
	book.ID = id
	if _, err = rs.claimISBN(ctx, rs.client, book.ISBN, id); err != nil {
		return book, err
	}
	data, err := jsonCodec.Marshal(book)
	if err != nil {
		rs.releaseISBN(ctx, book.ISBN, id)
		return book, err
	}
	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rs.bookKey(field(id)), data, 0)
		pipe.ZAdd(ctx, rs.ids, redis.Z{Score: float64(id), Member: field(id)})
		return nil
	})
	if err != nil {
		rs.releaseISBN(ctx, book.ISBN, id)
		return book, fmt.Errorf("redis: save book %d: %w", id, err)
	}
	return book, nil
}

// GetOne retrieves a book record based on its ID.
func (rs *redisBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	return rs.read(ctx, rs.client, id)
}

// Update watches the key of the book so that the write only lands when no
// other client modified that book between the read and the write.
func (rs *redisBookStorage) Update(ctx context.Context, id int64, mutate func(*Book) error) (Book, error) {
	var book Book
	var claimed *string
	txf := func(tx *redis.Tx) error {
		current, err := rs.read(ctx, tx, id)
		if err != nil {
			return err
		}
		previous := copyString(current.ISBN)
		book = current
		if err = mutate(&book); err != nil {
			return err
		}
		changed := !sameISBN(previous, book.ISBN)
		if changed {
			ok, err := rs.claimISBN(ctx, tx, book.ISBN, id)
			if err != nil {
				return err
			}
			if ok {
				claimed = copyString(book.ISBN)
			}
		}
		data, err := jsonCodec.Marshal(book)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rs.bookKey(field(id)), data, 0)
			if changed && previous != nil {
				pipe.HDel(ctx, rs.isbns, *previous)
			}
			return nil
		})
		return err
	}

	err := rs.watch(ctx, id, txf)
	if err != nil {
		rs.releaseISBN(ctx, claimed, id)
	}
	return book, err
}

// Delete removes a book record based on its ID and frees its isbn.
func (rs *redisBookStorage) Delete(ctx context.Context, id int64) error {
	return rs.watch(ctx, id, func(tx *redis.Tx) error {
		book, err := rs.read(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rs.bookKey(field(id)))
			pipe.ZRem(ctx, rs.ids, field(id))
			if book.ISBN != nil {
				pipe.HDel(ctx, rs.isbns, *book.ISBN)
			}
			return nil
		})
		return err
	})
}

// GetAll retrieves a list of all books ordered by id.
func (rs *redisBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	ids, err := rs.client.ZRange(ctx, rs.ids, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list books: %w", err)
	}
	books := make([]Book, 0, len(ids))
	if len(ids) == 0 {
		return books, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = rs.bookKey(id)
	}
	values, err := rs.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list books: %w", err)
	}
	for _, value := range values {
		// deleted after the ids were listed.
		data, ok := value.(string)
		if !ok {
			continue
		}
		var book Book
		if err = jsonCodec.UnmarshalFromString(data, &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

// Find evaluates the filter over all stored books.
func (rs *redisBookStorage) Find(ctx context.Context, filter BookFilter) ([]Book, error) {
	books, err := rs.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return FilterBooks(books, filter), nil
}

// Statistics aggregates the figures over all stored books.
func (rs *redisBookStorage) Statistics(ctx context.Context) (BookStatistics, error) {
	books, err := rs.GetAll(ctx)
	if err != nil {
		return BookStatistics{}, err
	}
	return ComputeStatistics(books), nil
}

func (rs *redisBookStorage) read(ctx context.Context, c redis.Cmdable, id int64) (Book, error) {
	var book Book
	data, err := c.Get(ctx, rs.bookKey(field(id))).Bytes()
	if errors.Is(err, redis.Nil) {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, fmt.Errorf("redis: get book %d: %w", id, err)
	}
	err = jsonCodec.Unmarshal(data, &book)
	return book, err
}

// watch runs txf with the book key watched and retries it while the
// transaction keeps failing because of concurrent writers.
func (rs *redisBookStorage) watch(ctx context.Context, id int64, txf func(*redis.Tx) error) error {
	for attempt := 1; attempt <= maxWatchAttempts; attempt++ {
		err := rs.client.Watch(ctx, txf, rs.bookKey(field(id)))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		rs.logger.Debug("redis: optimistic lock failed", zap.Int64("book.id", id), zap.Int("attempt", attempt))
	}
	rs.logger.Warn("redis: optimistic lock attempts exhausted", zap.Int64("book.id", id), zap.Int("attempts", maxWatchAttempts))
	return fmt.Errorf("redis: update book %d: %w", id, errConcurrentUpdate)
}

// claimISBN records id as the owner of isbn. It reports whether the claim is
// new and fails with ErrDuplicateISBN when another book already owns it.
func (rs *redisBookStorage) claimISBN(ctx context.Context, c redis.Cmdable, isbn *string, id int64) (bool, error) {
	if isbn == nil {
		return false, nil
	}
	ok, err := c.HSetNX(ctx, rs.isbns, *isbn, field(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim isbn %s: %w", *isbn, err)
	}
	if ok {
		return true, nil
	}
	owner, err := c.HGet(ctx, rs.isbns, *isbn).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis: get isbn %s owner: %w", *isbn, err)
	}
	if owner == field(id) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", ErrDuplicateISBN, *isbn)
}

// releaseISBN gives back an isbn claimed by id whose book write did not land.
func (rs *redisBookStorage) releaseISBN(ctx context.Context, isbn *string, id int64) {
	if isbn == nil {
		return
	}
	owner, err := rs.client.HGet(ctx, rs.isbns, *isbn).Result()
	if err != nil || owner != field(id) {
		return
	}
	if err = rs.client.HDel(ctx, rs.isbns, *isbn).Err(); err != nil {
		rs.logger.Error("redis: failed to release isbn", zap.Int64("book.id", id), zap.String("book.isbn", *isbn), zap.Error(err))
	}
}

func field(id int64) string {
	return strconv.FormatInt(id, 10)
}
