package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// PostgreSQL error codes that mean a lock could not be obtained in time.
const (
	pqLockNotAvailable = "55P03"
	pqQueryCanceled    = "57014"
	pqDeadlockDetected = "40P01"
	pqUniqueViolation  = "23505"
)

// pendingActiveIndex enforces one PENDING_ACTIVE card per owner.
const pendingActiveIndex = "cards_owner_pending_active_idx"

const cardColumns = `id, number, last_digits, number_digest, owner_id, holder_name, balance, status,
		expiry_date, version, created_at, updated_at`

const userColumns = `id, username, email, password_hash, firstname, lastname, role, enabled, created_at, updated_at`

// queryer is satisfied by *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore provides database operations
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore initializes a new store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a READ COMMITTED transaction. Row locks taken by fn
// wait at most opts.Timeout.
func (s *PostgresStore) InTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}
	if opts.Timeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.Timeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return translate(ctx, fmt.Errorf("failed to set lock timeout: %w", err))
		}
	}

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		_ = tx.Rollback()
		return translate(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return translate(ctx, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// translate maps lock and deadline failures to models.ErrLockTimeout and
// passes every other error through.
func translate(ctx context.Context, err error) error {
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqQueryCanceled, pqDeadlockDetected:
			return models.ErrLockTimeout
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.ErrLockTimeout
	}
	return err
}

type pgTx struct {
	q queryer
}

func (t *pgTx) Cards() CardRepository { return &pgCards{q: t.q} }
func (t *pgTx) Users() UserRepository { return &pgUsers{q: t.q} }

type pgCards struct {
	q queryer
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (models.Card, error) {
	var c models.Card
	var status string
	err := row.Scan(&c.ID, &c.Number, &c.LastDigits, &c.NumberDigest, &c.OwnerID, &c.HolderName,
		&c.Balance, &status, &c.ExpiryDate, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	c.Status = models.CardStatus(status)
	return c, err
}

func (r *pgCards) findOne(ctx context.Context, query string, args ...any) (models.Card, error) {
	card, err := scanCard(r.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return models.Card{}, models.ErrCardNotFound
	}
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to find card: %w", err)
	}
	return card, nil
}

// FindByID retrieves a card by id
func (r *pgCards) FindByID(ctx context.Context, id int64) (models.Card, error) {
	return r.findOne(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1`, id)
}

// FindByIDAndOwner retrieves a card only if it belongs to ownerID
func (r *pgCards) FindByIDAndOwner(ctx context.Context, id, ownerID int64) (models.Card, error) {
	return r.findOne(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1 AND owner_id = $2`, id, ownerID)
}

// FindByIDForUpdate retrieves a card and locks its row
func (r *pgCards) FindByIDForUpdate(ctx context.Context, id int64) (models.Card, error) {
	return r.findOne(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgCards) ExistsByDigest(ctx context.Context, digest string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bank.cards WHERE number_digest = $1)`, digest).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check card digest: %w", err)
	}
	return exists, nil
}

func (r *pgCards) ExistsByOwnerAndStatus(ctx context.Context, ownerID int64, status models.CardStatus) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bank.cards WHERE owner_id = $1 AND status = $2)`,
		ownerID, string(status)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cards of user: %w", err)
	}
	return exists, nil
}

// Create inserts a new card and fills in its generated fields
func (r *pgCards) Create(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO bank.cards (number, last_digits, number_digest, owner_id, holder_name, balance, status,
			expiry_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, version, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, card.Number, card.LastDigits, card.NumberDigest, card.OwnerID,
		card.HolderName, card.Balance, string(card.Status), card.ExpiryDate).
		Scan(&card.ID, &card.Version, &card.CreatedAt, &card.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && pqErr.Constraint == pendingActiveIndex {
		return models.ErrCardPendingActive
	}
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// Update writes status and balance guarded by the row version
func (r *pgCards) Update(ctx context.Context, card models.Card) (models.Card, error) {
	query := `
		UPDATE bank.cards
		SET status = $2, balance = $3, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND version = $4
		RETURNING version, updated_at`
	err := r.q.QueryRowContext(ctx, query, card.ID, string(card.Status), card.Balance, card.Version).
		Scan(&card.Version, &card.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Card{}, models.ErrStaleCard
	}
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to update card: %w", err)
	}
	return card, nil
}

func (r *pgCards) DeleteByID(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bank.cards WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete card: %w", err)
	}
	return n > 0, nil
}

func (r *pgCards) ListByOwner(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.Card, int, error) {
	return r.list(ctx, `WHERE owner_id = $1`, page, ownerID)
}

func (r *pgCards) ListAll(ctx context.Context, page models.PageRequest) ([]models.Card, int, error) {
	return r.list(ctx, ``, page)
}

// list returns one page ordered newest first together with the total row count.
func (r *pgCards) list(ctx context.Context, where string, page models.PageRequest, args ...any) ([]models.Card, int, error) {
	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT count(*) FROM bank.cards `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cards: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM bank.cards %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		cardColumns, where, n+1, n+2)
	rows, err := r.q.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards := make([]models.Card, 0, page.Size)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, total, nil
}

func (r *pgCards) CountByStatus(ctx context.Context) (map[models.CardStatus]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, count(*) FROM bank.cards GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.CardStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan card count: %w", err)
		}
		counts[models.CardStatus(status)] = n
	}
	return counts, rows.Err()
}

type pgUsers struct {
	q queryer
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&role, &u.Enabled, &u.CreatedAt, &u.UpdatedAt)
	u.Role = models.Role(role)
	return u, err
}

// Create creates a new user in the database
func (r *pgUsers) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, password_hash, firstname, lastname, role, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.FirstName,
		user.LastName, string(user.Role), user.Enabled).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return models.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *pgUsers) findOne(ctx context.Context, query string, arg any) (models.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by id
func (r *pgUsers) FindByID(ctx context.Context, id int64) (models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM bank.users WHERE id = $1`, id)
}

// FindByUsername retrieves a user by username
func (r *pgUsers) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM bank.users WHERE username = $1`, username)
}

func (r *pgUsers) ExistsByRole(ctx context.Context, role models.Role) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bank.users WHERE role = $1)`, string(role)).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check users: %w", err)
	}
	return exists, nil
}
