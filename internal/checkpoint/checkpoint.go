// Package checkpoint persists per-vertex state between aggregation passes
// so a long solve can be restarted warm. Snapshots are gob-encoded blobs
// keyed by aggregation-pass number in a badger database; the engine stays
// storage-agnostic and reaches this package only through its snapshot
// hook.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
)

// ErrNoCheckpoint indicates no snapshot exists for the requested pass.
var ErrNoCheckpoint = errors.New("checkpoint: not found")

var keyPrefix = []byte("pass/")

// Store is a badger-backed snapshot store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a checkpoint store rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint: open %s", dir)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "checkpoint: close")
}

// Save gob-encodes state and stores it under the given pass number,
// overwriting any previous snapshot for that pass.
func (s *Store) Save(pass uint64, state any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return errors.Wrapf(err, "checkpoint: encode pass %d", pass)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(passKey(pass), buf.Bytes())
	})
	return errors.Wrapf(err, "checkpoint: save pass %d", pass)
}

// Load decodes the snapshot for the given pass into state, which must be
// a pointer of the type passed to Save. Returns ErrNoCheckpoint if the
// pass was never saved.
func (s *Store) Load(pass uint64, state any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(passKey(pass))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoCheckpoint
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(state)
		})
	})
	if errors.Is(err, ErrNoCheckpoint) {
		return err
	}
	return errors.Wrapf(err, "checkpoint: load pass %d", pass)
}

// Latest returns the highest saved pass number, or ok=false when the
// store is empty.
func (s *Store) Latest() (pass uint64, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Reverse: true,
			Prefix:  keyPrefix,
		})
		defer it.Close()
		// Seek past the last possible pass key, then step back within
		// the prefix.
		it.Seek(passKey(^uint64(0)))
		if !it.ValidForPrefix(keyPrefix) {
			return nil
		}
		key := it.Item().Key()
		pass = binary.BigEndian.Uint64(key[len(keyPrefix):])
		ok = true
		return nil
	})
	return pass, ok, errors.Wrap(err, "checkpoint: latest")
}

// passKey builds a big-endian key so lexical order matches numeric order.
func passKey(pass uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], pass)
	return key
}
