package repository

import (
	"context"
	"time"

	"github.com/Dan9191/card-service/internal/models"
)

// CardRepository provides card persistence inside a unit of work.
// Lookups that match no row return models.ErrCardNotFound.
type CardRepository interface {
	FindByID(ctx context.Context, id int64) (models.Card, error)
	FindByIDAndOwner(ctx context.Context, id, ownerID int64) (models.Card, error)
	// FindByIDForUpdate reads the card and holds an exclusive lock on it until
	// the unit of work ends.
	FindByIDForUpdate(ctx context.Context, id int64) (models.Card, error)
	ExistsByDigest(ctx context.Context, digest string) (bool, error)
	ExistsByOwnerAndStatus(ctx context.Context, ownerID int64, status models.CardStatus) (bool, error)
	Create(ctx context.Context, card *models.Card) error
	// Update persists status and balance if the stored version still equals
	// card.Version, and returns models.ErrStaleCard otherwise.
	Update(ctx context.Context, card models.Card) (models.Card, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
	ListByOwner(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.Card, int, error)
	ListAll(ctx context.Context, page models.PageRequest) ([]models.Card, int, error)
	CountByStatus(ctx context.Context) (map[models.CardStatus]int, error)
}

// UserRepository provides user persistence inside a unit of work.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	ExistsByRole(ctx context.Context, role models.Role) (bool, error)
}

// Tx exposes repositories bound to one unit of work.
type Tx interface {
	Cards() CardRepository
	Users() UserRepository
}

// TxOptions configures a unit of work.
type TxOptions struct {
	// Timeout bounds the whole unit of work, lock waits included. Zero means no bound.
	Timeout time.Duration
}

// Store runs units of work. InTx commits when fn returns nil and rolls back
// otherwise; a lock wait that outlives the timeout fails with models.ErrLockTimeout.
type Store interface {
	InTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
