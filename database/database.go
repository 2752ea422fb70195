package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_errors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

var ErrUnknownBackend = errors.New("unknown database backend")

// Database is a flat key/value store. Get returns (nil, nil) for missing keys.
type Database interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	// Write applies every operation in the batch atomically.
	Write(batch *Batch) error
	// ForEach visits keys with the given prefix in ascending order until fn returns an error.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Open opens the backend by name under dir.
func Open(backend, dir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendLevelDB:
		return NewLevelDB(filepath.Join(dir, "chaindata"))
	case BackendBolt:
		return NewBoltDB(filepath.Join(dir, "chain.db"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

type LevelDB struct {
	db *leveldb.DB
}

func NewLevelDB(path string) (*LevelDB, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		if ldb_errors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(path, nil)
		}
		if err != nil {
			return nil, err
		}
	}
	return &LevelDB{db: db}, nil
}

// NewMemoryLevelDB opens a LevelDB instance backed by memory only.
func NewMemoryLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) Write(batch *Batch) error {
	b := new(leveldb.Batch)
	for _, op := range batch.ops {
		if op.del {
			b.Delete(op.key)
		} else {
			b.Put(op.key, op.value)
		}
	}
	return ldb.db.Write(b, nil)
}

func (ldb *LevelDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	var rnge *util.Range
	if prefix != nil {
		rnge = util.BytesPrefix(prefix)
	}
	iter := ldb.db.NewIterator(rnge, nil)
	defer iter.Release()
	for iter.Next() {
		// buffer iterator dipakai ulang, salin dulu
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
