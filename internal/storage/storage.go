package storage

import (
	"context"

	"shadowfax/internal/models"
)

// AccessStore defines the interface for the bot's access lists
type AccessStore interface {
	// Admin operations
	ListAdmins(ctx context.Context) ([]int64, error)
	// AddAdmin returns false if the id was already an admin
	AddAdmin(ctx context.Context, id int64) (bool, error)

	// Approved user operations
	IsApproved(ctx context.Context, id int64) (bool, error)
	// Approve returns false if the user was already approved; the stored record is left untouched
	Approve(ctx context.Context, user models.UserRecord) (bool, error)
	ListUsers(ctx context.Context) ([]models.UserRecord, error)

	// Blacklist operations
	IsBlacklisted(ctx context.Context, id int64) (bool, error)
	// Blacklist returns false if the id was already blacklisted
	Blacklist(ctx context.Context, id int64) (bool, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// CursorStore persists the highest processed Telegram update id
type CursorStore interface {
	Load(ctx context.Context) (int, error)
	// Save must never lower a previously stored value
	Save(ctx context.Context, cursor int) error
	Close() error
}
