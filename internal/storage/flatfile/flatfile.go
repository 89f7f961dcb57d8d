// Package flatfile keeps the bot's access lists in plain text files, one id per
// line. Approved users may carry an annotation after '#':
//
//	722142144#Ivan (@ivan)
//
// Files are re-read on every lookup so edits made by hand are picked up without
// a restart. Blank lines and lines that do not start with an id are ignored.
package flatfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"shadowfax/internal/models"
)

const (
	AdminsFile    = "admins.txt"
	UsersFile     = "users.txt"
	BlacklistFile = "blacklist.txt"

	filePerm = 0o600
	dirPerm  = 0o700
)

// Store is a flat-text implementation of storage.AccessStore
type Store struct {
	dir string
	mu  sync.Mutex // serializes check-then-append
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Initialize creates the data directory and empty list files
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("create data dir %s: %w", s.dir, err)
	}
	for _, name := range []string{AdminsFile, UsersFile, BlacklistFile} {
		f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_RDONLY, filePerm)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		_ = f.Close()
	}
	return nil
}

// ListAdmins returns admin ids in file order
func (s *Store) ListAdmins(ctx context.Context) ([]int64, error) {
	records, err := s.read(AdminsFile)
	if err != nil {
		return nil, err
	}
	return ids(records), nil
}

// AddAdmin appends an admin id
func (s *Store) AddAdmin(ctx context.Context, id int64) (bool, error) {
	return s.appendUnique(AdminsFile, models.UserRecord{ID: id})
}

// IsApproved reports whether id is in the approved users file
func (s *Store) IsApproved(ctx context.Context, id int64) (bool, error) {
	return s.contains(UsersFile, id)
}

// Approve appends an approved user with its annotation
func (s *Store) Approve(ctx context.Context, user models.UserRecord) (bool, error) {
	return s.appendUnique(UsersFile, user)
}

// ListUsers returns approved users in file order
func (s *Store) ListUsers(ctx context.Context) ([]models.UserRecord, error) {
	return s.read(UsersFile)
}

// IsBlacklisted reports whether id is in the blacklist file
func (s *Store) IsBlacklisted(ctx context.Context, id int64) (bool, error) {
	return s.contains(BlacklistFile, id)
}

// Blacklist appends id to the blacklist
func (s *Store) Blacklist(ctx context.Context, id int64) (bool, error) {
	return s.appendUnique(BlacklistFile, models.UserRecord{ID: id})
}

// Close does nothing; files are opened per call
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) contains(name string, id int64) (bool, error) {
	records, err := s.read(name)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) appendUnique(name string, rec models.UserRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.contains(name, rec.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return false, fmt.Errorf("create data dir %s: %w", s.dir, err)
	}
	f, err := os.OpenFile(s.path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(rec) + "\n"); err != nil {
		return false, fmt.Errorf("append to %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) read(name string) ([]models.UserRecord, error) {
	f, err := os.Open(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var records []models.UserRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if rec, ok := ParseLine(scanner.Text()); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return records, nil
}

// ParseLine parses "id" or "id#annotation"
func ParseLine(line string) (models.UserRecord, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.UserRecord{}, false
	}
	idPart, note, _ := strings.Cut(line, "#")
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return models.UserRecord{}, false
	}
	return models.UserRecord{ID: id, Annotation: strings.TrimSpace(note)}, true
}

// FormatLine is the inverse of ParseLine
func FormatLine(rec models.UserRecord) string {
	note := strings.ReplaceAll(strings.TrimSpace(rec.Annotation), "\n", " ")
	if note == "" {
		return strconv.FormatInt(rec.ID, 10)
	}
	return fmt.Sprintf("%d#%s", rec.ID, note)
}

func ids(records []models.UserRecord) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
