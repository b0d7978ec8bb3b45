package principal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-sis/helios-sis/internal/shared"
)

// ErrDuplicateEmail indicates the email is already registered.
var ErrDuplicateEmail = errors.New("principal: email already registered")

// Repository defines persistence operations for principals.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	Create(ctx context.Context, email, name, passwordHash string) (*Principal, error)
	ListAttributes(ctx context.Context, principalID int64) ([]Attribute, error)
	AddAttribute(ctx context.Context, principalID int64, name, value string) error
	SetActive(ctx context.Context, principalID int64, active bool) error
	UpdatePassword(ctx context.Context, principalID int64, passwordHash string) error
	SetPasswordResetToken(ctx context.Context, principalID int64, digest string, expiresAt time.Time) error
	FindByPasswordResetDigest(ctx context.Context, digest string) (*Principal, error)
	ClearPasswordResetToken(ctx context.Context, principalID int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const principalColumns = `id, email, name, password_hash, is_active, password_changed_at, created_at, updated_at`

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &p.IsActive, &p.PasswordChangedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByID fetches a principal by primary key.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// GetByEmail fetches a principal by email.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE email = $1`, email)
	return scanPrincipal(row)
}

// Create registers a new principal.
func (r *PGRepository) Create(ctx context.Context, email, name, passwordHash string) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO principals (email, name, password_hash, is_active, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, now(), now(), now())
		RETURNING `+principalColumns, email, name, passwordHash)
	p, err := scanPrincipal(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return p, nil
}

// ListAttributes returns the principal's attributes ordered by name.
func (r *PGRepository) ListAttributes(ctx context.Context, principalID int64) ([]Attribute, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, value FROM principal_attributes WHERE principal_id = $1 ORDER BY name`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attrs []Attribute
	for rows.Next() {
		var a Attribute
		if err := rows.Scan(&a.Name, &a.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attrs, nil
}

// AddAttribute appends an attribute, replacing an existing value for the same name.
func (r *PGRepository) AddAttribute(ctx context.Context, principalID int64, name, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principal_attributes (principal_id, name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (principal_id, name) DO UPDATE SET value = EXCLUDED.value`,
		principalID, name, value)
	return err
}

// SetActive flips the active flag.
func (r *PGRepository) SetActive(ctx context.Context, principalID int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE principals SET is_active = $2, updated_at = now() WHERE id = $1`, principalID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePassword rotates credentials and bumps password_changed_at, which
// invalidates every access token issued before this moment.
func (r *PGRepository) UpdatePassword(ctx context.Context, principalID int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals
		SET password_hash = $2, password_changed_at = now(), updated_at = now()
		WHERE id = $1`, principalID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPasswordResetToken stores the reset digest with its expiry.
func (r *PGRepository) SetPasswordResetToken(ctx context.Context, principalID int64, digest string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals
		SET reset_token_digest = $2, reset_token_expires_at = $3, updated_at = now()
		WHERE id = $1`, principalID, digest, expiresAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByPasswordResetDigest looks up an unexpired reset digest.
func (r *PGRepository) FindByPasswordResetDigest(ctx context.Context, digest string) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE reset_token_digest = $1 AND reset_token_expires_at > now()`, digest)
	return scanPrincipal(row)
}

// ClearPasswordResetToken removes the stored digest after successful use.
func (r *PGRepository) ClearPasswordResetToken(ctx context.Context, principalID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE principals
		SET reset_token_digest = NULL, reset_token_expires_at = NULL, updated_at = now()
		WHERE id = $1`, principalID)
	return err
}

var _ Repository = (*PGRepository)(nil)
