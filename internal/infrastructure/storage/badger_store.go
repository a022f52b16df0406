package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
	"TrendPress/pkg/logger"
)

// ErrReadOnly is returned by writes on a store opened for listing.
var ErrReadOnly = errors.New("store opened read-only")

const (
	recordPrefix = "record:"
	topicPrefix  = "topic:"
	sequenceKey  = "seq:record"
)

// BadgerStore keeps records as JSON values in an embedded badger database.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ ports.RecordStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the database directory at path.
func NewBadgerStore(path string, log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = logger.NewBadger(log)
	return openBadger(opts)
}

// OpenBadgerReadOnly opens an existing database for listing only. It shares
// the directory with other read-only openers but not with a writer.
func OpenBadgerReadOnly(path string, log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithReadOnly(true)
	opts.Logger = logger.NewBadger(log)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger read-only: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory returns a store that lives only for the process lifetime.
func OpenInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), 16)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the id sequence and the database.
func (s *BadgerStore) Close() error {
	var seqErr error
	if s.seq != nil {
		seqErr = s.seq.Release()
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	if seqErr != nil {
		return fmt.Errorf("release sequence: %w", seqErr)
	}
	return nil
}

// Insert stores a new record; the topic must not be tracked yet.
func (s *BadgerStore) Insert(_ context.Context, record domain.Record) (domain.Record, error) {
	if record.TopicName == "" {
		return domain.Record{}, fmt.Errorf("insert record: empty topic")
	}
	if s.seq == nil {
		return domain.Record{}, fmt.Errorf("insert record: %w", ErrReadOnly)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		topicKey := []byte(topicPrefix + record.TopicName)
		if _, err := txn.Get(topicKey); err == nil {
			return domain.ErrDuplicateTopic
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		next, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("next id: %w", err)
		}
		record.ID = int64(next) + 1
		record.Version = 1

		if err := putRecord(txn, record); err != nil {
			return err
		}
		return txn.Set(topicKey, []byte(recordKey(record.ID)))
	})
	if err != nil {
		return domain.Record{}, fmt.Errorf("insert record: %w", mapTxnErr(err))
	}
	return record, nil
}

// Get loads a record by id.
func (s *BadgerStore) Get(_ context.Context, id int64) (domain.Record, error) {
	var record domain.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return domain.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return record, nil
}

// List returns every record ordered by id.
func (s *BadgerStore) List(ctx context.Context) ([]domain.Record, error) {
	return s.scan(ctx, func(domain.Record) bool { return true }, 0)
}

// QueryEligible returns records matching predicate in id order.
func (s *BadgerStore) QueryEligible(ctx context.Context, predicate domain.Predicate, limit int) ([]domain.Record, error) {
	return s.scan(ctx, predicate.Match, limit)
}

func (s *BadgerStore) scan(ctx context.Context, keep func(domain.Record) bool, limit int) ([]domain.Record, error) {
	var records []domain.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record domain.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if !keep(record) {
				continue
			}
			records = append(records, record)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return records, nil
}

// Update replaces the record when its version matches the stored one.
func (s *BadgerStore) Update(_ context.Context, record domain.Record) (domain.Record, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := getRecord(txn, record.ID)
		if err != nil {
			return err
		}
		if current.Version != record.Version {
			return fmt.Errorf("%w: stored %d, got %d", domain.ErrVersionConflict, current.Version, record.Version)
		}
		if err := domain.CheckForward(current, record); err != nil {
			return err
		}
		record.Version = current.Version + 1
		return putRecord(txn, record)
	})
	if err != nil {
		return domain.Record{}, fmt.Errorf("update record %d: %w", record.ID, mapTxnErr(err))
	}
	return record, nil
}

func recordKey(id int64) string {
	return fmt.Sprintf("%s%020d", recordPrefix, id)
}

func getRecord(txn *badger.Txn, id int64) (domain.Record, error) {
	item, err := txn.Get([]byte(recordKey(id)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Record{}, err
	}

	var record domain.Record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return domain.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

func putRecord(txn *badger.Txn, record domain.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return txn.Set([]byte(recordKey(record.ID)), data)
}

// Concurrent writers to the same key lose with badger.ErrConflict.
func mapTxnErr(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", domain.ErrVersionConflict, err)
	}
	return err
}
