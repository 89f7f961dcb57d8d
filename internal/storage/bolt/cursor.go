// Package bolt persists the Telegram update cursor in a bbolt file so a restart
// resumes after the last processed update instead of relying on the server-side
// confirmation alone.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	dbFileMode    = 0o600
	dbOpenTimeout = time.Second
)

var (
	bucketName = []byte("poller")
	cursorKey  = []byte("update_cursor")
)

// CursorStore is a bbolt-backed storage.CursorStore
type CursorStore struct {
	db *bbolt.DB
}

// OpenCursorStore opens (or creates) the state file at path
func OpenCursorStore(path string) (*CursorStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	db, err := bbolt.Open(path, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open state file %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &CursorStore{db: db}, nil
}

// Load returns the stored cursor, zero when nothing was saved yet
func (s *CursorStore) Load(ctx context.Context) (int, error) {
	var cursor int
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor = decode(tx.Bucket(bucketName).Get(cursorKey))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	return cursor, nil
}

// Save stores cursor if it is greater than the stored value
func (s *CursorStore) Save(ctx context.Context, cursor int) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if cursor <= decode(b.Get(cursorKey)) {
			return nil
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(cursor))
		return b.Put(cursorKey, buf)
	})
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// Close closes the underlying bbolt file
func (s *CursorStore) Close() error {
	return s.db.Close()
}

func decode(v []byte) int {
	if len(v) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(v))
}
