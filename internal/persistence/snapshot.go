package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"upbit-quant-bot/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// SnapshotStore persists the per-strategy live state so a restarted process
// can resume with the position and account it had. It abstracts the storage
// mechanism from the supervisor.
type SnapshotStore interface {
	// SaveSnapshot atomically saves the snapshot for its strategy id.
	SaveSnapshot(snap *models.TraderSnapshot) error

	// LoadSnapshot loads the snapshot for a strategy id.
	// If none is stored, it returns (nil, nil).
	LoadSnapshot(strategyID string) (*models.TraderSnapshot, error)

	// Close gracefully closes the connection to the database.
	Close() error
}

// badgerSnapshotStore is the BadgerDB implementation of SnapshotStore, one
// JSON value per strategy id.
type badgerSnapshotStore struct {
	db *badger.DB
}

// NewBadgerSnapshotStore opens (creating if needed) a snapshot store at dbPath.
func NewBadgerSnapshotStore(dbPath string) (SnapshotStore, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the app's logs clean; errors
	// still come back from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerSnapshotStore{db: db}, nil
}

func snapshotKey(strategyID string) []byte {
	return []byte("snapshot/" + strategyID)
}

func (s *badgerSnapshotStore) SaveSnapshot(snap *models.TraderSnapshot) error {
	if snap.StrategyID == "" {
		return errors.New("snapshot has no strategy id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.StrategyID), data)
	})
}

func (s *badgerSnapshotStore) LoadSnapshot(strategyID string) (*models.TraderSnapshot, error) {
	var snap models.TraderSnapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(strategyID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return fmt.Errorf("empty snapshot value for %s", strategyID)
			}
			return json.Unmarshal(val, &snap)
		})
	})

	// Key not found is the expected "no snapshot yet" case.
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *badgerSnapshotStore) Close() error {
	return s.db.Close()
}
