package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"shadowfax/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseDB struct {
	conn clickhouse.Conn
	mu   sync.Mutex // serializes check-then-insert
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	return nil
}

// ListAdmins returns all admin ids
func (db *ClickHouseDB) ListAdmins(ctx context.Context) ([]int64, error) {
	rows, err := db.conn.Query(ctx, `SELECT DISTINCT id FROM admins ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// AddAdmin inserts an admin id unless it already exists
func (db *ClickHouseDB) AddAdmin(ctx context.Context, id int64) (bool, error) {
	return db.insertUnique(ctx, "admins",
		`INSERT INTO admins (id, added_at) VALUES (?, ?)`, id, time.Now())
}

// IsApproved checks the approved_users table
func (db *ClickHouseDB) IsApproved(ctx context.Context, id int64) (bool, error) {
	return db.exists(ctx, "approved_users", id)
}

// Approve inserts an approved user unless the id already exists
func (db *ClickHouseDB) Approve(ctx context.Context, user models.UserRecord) (bool, error) {
	return db.insertUnique(ctx, "approved_users",
		`INSERT INTO approved_users (id, annotation, approved_at) VALUES (?, ?, ?)`,
		user.ID, user.Annotation, time.Now())
}

// ListUsers returns approved users ordered by approval time
func (db *ClickHouseDB) ListUsers(ctx context.Context) ([]models.UserRecord, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT id, argMin(annotation, approved_at) AS annotation
		FROM approved_users
		GROUP BY id
		ORDER BY min(approved_at), id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// IsBlacklisted checks the blacklist table
func (db *ClickHouseDB) IsBlacklisted(ctx context.Context, id int64) (bool, error) {
	return db.exists(ctx, "blacklist", id)
}

// Blacklist inserts an id into the blacklist unless it already exists
func (db *ClickHouseDB) Blacklist(ctx context.Context, id int64) (bool, error) {
	return db.insertUnique(ctx, "blacklist",
		`INSERT INTO blacklist (id, added_at) VALUES (?, ?)`, id, time.Now())
}

// table is always one of the constants above, never user input
func (db *ClickHouseDB) exists(ctx context.Context, table string, id int64) (bool, error) {
	var count uint64
	row := db.conn.QueryRow(ctx, fmt.Sprintf(`SELECT count() FROM %s WHERE id = ?`, table), id)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return count > 0, nil
}

func (db *ClickHouseDB) insertUnique(ctx context.Context, table, query string, args ...any) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	found, err := db.exists(ctx, table, args[0].(int64))
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if err := db.conn.Exec(ctx, query, args...); err != nil {
		return false, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return true, nil
}

// rowIterator is the part of driver.Rows the scanners need
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanIDs(rows rowIterator) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read admins: %w", err)
	}
	return ids, nil
}

func scanUsers(rows rowIterator) ([]models.UserRecord, error) {
	var users []models.UserRecord
	for rows.Next() {
		var user models.UserRecord
		if err := rows.Scan(&user.ID, &user.Annotation); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return users, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
