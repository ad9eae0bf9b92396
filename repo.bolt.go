package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// boltBookStorage keeps the books in one bucket keyed by id and the
// isbn ownership in a second bucket mapping each isbn to its book id.
type boltBookStorage struct {
	logger *zap.Logger
	client *bolt.DB
	bucket []byte
	isbns  []byte
}

func isbnBucketName(bucket string) string {
	return bucket + ".isbn"
}

// GetBoltDBClient setup the database and the bucket then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{config.BoltDB.BucketName, isbnBucketName(config.BoltDB.BucketName)} {
			if _, errB := tx.CreateBucketIfNotExists([]byte(name)); errB != nil {
				return fmt.Errorf("failed to create %s bucket: %v", name, errB)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltBookStorage provides an instance of bolt-based book storage.
func NewBoltBookStorage(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) BookStorage {
	return &boltBookStorage{
		logger: logger,
		client: client,
		bucket: []byte(boltConfig.BucketName),
		isbns:  []byte(isbnBucketName(boltConfig.BucketName)),
	}
}

// Close shuts down the bolt-based book storage.
func (bs *boltBookStorage) Close() error {
	return bs.client.Close()
}

// Add inserts a new book record with the next sequence of the bucket as id.
// The isbn is claimed in the same transaction so two books never share it.
func (bs *boltBookStorage) Add(_ context.Context, book Book) (Book, error) {
	err := bs.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bs.bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		book.ID = int64(seq)
		if err = bs.claimISBN(tx, book.ISBN, book.ID); err != nil {
			return err
		}
		data, err := jsonCodec.Marshal(book)
		if err != nil {
			return err
		}
		return b.Put(itob(book.ID), data)
	})
	if errors.Is(err, ErrDuplicateISBN) {
		return book, err
	}
	if err != nil {
		return book, fmt.Errorf("boltdb: save book: %w", err)
	}
	return book, nil
}

// GetOne retrieves a book record based on its ID.
func (bs *boltBookStorage) GetOne(_ context.Context, id int64) (Book, error) {
	var book Book
	err := bs.client.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bs.bucket).Get(itob(id))
		if data == nil {
			return ErrBookNotFound
		}
		return jsonCodec.Unmarshal(data, &book)
	})
	return book, err
}

// Update runs the read-modify-write inside a single writable transaction.
func (bs *boltBookStorage) Update(_ context.Context, id int64, mutate func(*Book) error) (Book, error) {
	var book Book
	err := bs.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bs.bucket)
		data := b.Get(itob(id))
		if data == nil {
			return ErrBookNotFound
		}
		if err := jsonCodec.Unmarshal(data, &book); err != nil {
			return err
		}
		previous := copyString(book.ISBN)
		if err := mutate(&book); err != nil {
			return err
		}
		if !sameISBN(previous, book.ISBN) {
			if err := bs.claimISBN(tx, book.ISBN, id); err != nil {
				return err
			}
			if err := bs.releaseISBN(tx, previous); err != nil {
				return err
			}
		}
		data, err := jsonCodec.Marshal(book)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
	return book, err
}

// Delete removes a book record based on its ID and frees its isbn.
func (bs *boltBookStorage) Delete(_ context.Context, id int64) error {
	return bs.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bs.bucket)
		data := b.Get(itob(id))
		if data == nil {
			return ErrBookNotFound
		}
		var book Book
		if err := jsonCodec.Unmarshal(data, &book); err != nil {
			return err
		}
		if err := bs.releaseISBN(tx, book.ISBN); err != nil {
			return err
		}
		return b.Delete(itob(id))
	})
}

// GetAll retrieves a list of all books stored in the bolt database. Keys are
// big endian ids so the cursor walks them in ascending order.
func (bs *boltBookStorage) GetAll(_ context.Context) ([]Book, error) {
	books := []Book{}
	err := bs.client.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bs.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var book Book
			if err := jsonCodec.Unmarshal(v, &book); err != nil {
				return err
			}
			books = append(books, book)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return books, nil
}

// Find evaluates the filter over all stored books.
func (bs *boltBookStorage) Find(ctx context.Context, filter BookFilter) ([]Book, error) {
	books, err := bs.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return FilterBooks(books, filter), nil
}

// Statistics aggregates the figures over all stored books.
func (bs *boltBookStorage) Statistics(ctx context.Context) (BookStatistics, error) {
	books, err := bs.GetAll(ctx)
	if err != nil {
		return BookStatistics{}, err
	}
	return ComputeStatistics(books), nil
}

// claimISBN records id as the owner of isbn. It fails when another book owns it.
func (bs *boltBookStorage) claimISBN(tx *bolt.Tx, isbn *string, id int64) error {
	if isbn == nil {
		return nil
	}
	idx := tx.Bucket(bs.isbns)
	owner := idx.Get([]byte(*isbn))
	if owner != nil && !bytes.Equal(owner, itob(id)) {
		return fmt.Errorf("%w: %s", ErrDuplicateISBN, *isbn)
	}
	return idx.Put([]byte(*isbn), itob(id))
}

func (bs *boltBookStorage) releaseISBN(tx *bolt.Tx, isbn *string) error {
	if isbn == nil {
		return nil
	}
	return tx.Bucket(bs.isbns).Delete([]byte(*isbn))
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}
