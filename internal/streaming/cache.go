package streaming

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"voxelcore/internal/chunk"
)

// PayloadCache keeps encoded chunk payloads on disk, keyed chunk:<x>|<z>.
type PayloadCache struct {
	db *badger.DB
}

// OpenPayloadCache opens a cache in dir, or an in-memory one when dir is empty.
func OpenPayloadCache(dir string) (*PayloadCache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open payload cache: %w", err)
	}
	return &PayloadCache{db: db}, nil
}

func cacheKey(coord chunk.Coord) []byte {
	return []byte("chunk:" + coord.Key())
}

// Get returns the cached payload, if any.
func (c *PayloadCache) Get(coord chunk.Coord) ([]byte, bool, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(coord))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *PayloadCache) Put(coord chunk.Coord, data []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(coord), data)
	})
}

func (c *PayloadCache) Delete(coord chunk.Coord) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(coord))
	})
}

func (c *PayloadCache) Close() error {
	return c.db.Close()
}
