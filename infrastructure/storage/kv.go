package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"mini-chat/contract"

	"github.com/dgraph-io/badger/v4"
)

const (
	IdentityKey    = "identity"
	SessionsKey    = "sessions"
	MessagesPrefix = "messages:"
)

var _ contract.KeyValue = (*BadgerKV)(nil)

// BadgerKV exposes BadgerDB as the key-value surface used by every repository.
// Each call runs in its own transaction, so a Set is an atomic snapshot write.
type BadgerKV struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerKV(db *badger.DB, log *slog.Logger) *BadgerKV {
	return &BadgerKV{db: db, log: log}
}

func (b *BadgerKV) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (b *BadgerKV) Set(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *BadgerKV) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Scan returns every key/value pair under prefix, keys included in full.
func (b *BadgerKV) Scan(prefix string) (map[string][]byte, error) {
	res := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			res[string(item.KeyCopy(nil))] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	b.log.Debug("Prefix scanned", "prefix", prefix, "keys", len(res))
	return res, nil
}
