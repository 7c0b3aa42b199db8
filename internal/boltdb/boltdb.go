// Package boltdb persists the last processing outcome of every item in a bbolt file.
package boltdb

import (
	"encoding/json"
	"fmt"

	"github.com/r3labs/diff/v3"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/alanbriolat/lecture-archiver/internal/process"
)

var Buckets = struct {
	Metadata []byte
	Items    []byte
}{
	Metadata: []byte("__metadata__"),
	Items:    []byte("items"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

type Database interface {
	Close() error
	Version() (int, error)

	process.Database
}

type database struct {
	*bbolt.DB
	logger *zap.Logger
}

func New(path string, logger *zap.Logger) (_ Database, err error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Items); err != nil {
			return err
		}

		// Get the current version of the database
		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("state database version %d is newer than supported version %d", version, currentVersion)
		}

		// Set the current version of the database
		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &database{DB: db, logger: logger.Named("boltdb")}, nil
}

func (d database) Version() (version int, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		return json.Unmarshal(tx.Bucket(Buckets.Metadata).Get(MetadataKeys.Version), &version)
	})
	return version, err
}

func getItem(tx *bbolt.Tx, path string) (record process.ItemRecord, ok bool, err error) {
	data := tx.Bucket(Buckets.Items).Get([]byte(path))
	if data == nil {
		return record, false, nil
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, false, err
	}
	return record, true, nil
}

func (d database) GetItem(path string) (record process.ItemRecord, ok bool, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		record, ok, err = getItem(tx, path)
		return err
	})
	return record, ok, err
}

func (d database) ListItems() (items []process.ItemRecord, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Items)
		return bucket.ForEach(func(k, v []byte) error {
			var record process.ItemRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			} else {
				items = append(items, record)
				return nil
			}
		})
	})
	if err != nil {
		return nil, err
	} else {
		return items, nil
	}
}

func (d database) WriteItem(record *process.ItemRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		previous, ok, err := getItem(tx, record.Path)
		if err != nil {
			return err
		}
		if ok {
			d.logChanges(previous, *record)
		}
		return tx.Bucket(Buckets.Items).Put([]byte(record.Path), data)
	})
}

func (d database) logChanges(previous, current process.ItemRecord) {
	if !d.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	changelog, err := diff.Diff(previous, current)
	if err != nil {
		d.logger.Debug("cannot diff item record", zap.Error(err))
		return
	}
	for _, change := range changelog {
		d.logger.Debug("item record changed",
			zap.String("path", current.Path),
			zap.Strings("field", change.Path),
			zap.Any("from", change.From),
			zap.Any("to", change.To),
		)
	}
}
