package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pairchat/internal/models"
)

// UserRepo is a sqlx-backed UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, name, email, password_hash, google_id, avatar, is_online, last_seen, status,
	friends, blocked_users, incognito_chats, created_at, updated_at`

type userRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Email          string         `db:"email"`
	PasswordHash   string         `db:"password_hash"`
	GoogleID       string         `db:"google_id"`
	Avatar         string         `db:"avatar"`
	IsOnline       bool           `db:"is_online"`
	LastSeen       time.Time      `db:"last_seen"`
	Status         string         `db:"status"`
	Friends        pq.StringArray `db:"friends"`
	BlockedUsers   pq.StringArray `db:"blocked_users"`
	IncognitoChats []byte         `db:"incognito_chats"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r userRow) toModel() (models.User, error) {
	u := models.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		GoogleID:     r.GoogleID,
		Avatar:       r.Avatar,
		IsOnline:     r.IsOnline,
		LastSeen:     r.LastSeen,
		Status:       models.Status(r.Status),
		Friends:      []string(r.Friends),
		BlockedUsers: []string(r.BlockedUsers),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.IncognitoChats) > 0 {
		if err := json.Unmarshal(r.IncognitoChats, &u.IncognitoChats); err != nil {
			return models.User{}, fmt.Errorf("decode incognito chats: %w", err)
		}
	}
	return u, nil
}

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, user models.User) (models.User, error) {
	incognito, err := json.Marshal(nonNilRecords(user.IncognitoChats))
	if err != nil {
		return models.User{}, err
	}
	if user.Status == "" {
		user.Status = models.StatusOffline
	}

	var row userRow
	err = r.db.QueryRowxContext(ctx, `INSERT INTO users (id, name, email, password_hash, google_id, avatar, status, friends, blocked_users, incognito_chats)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING `+userColumns,
		user.ID, user.Name, user.Email, user.PasswordHash, user.GoogleID, user.Avatar, string(user.Status),
		pq.StringArray(nonNilStrings(user.Friends)), pq.StringArray(nonNilStrings(user.BlockedUsers)), incognito).
		StructScan(&row)
	if err != nil {
		return models.User{}, err
	}
	return row.toModel()
}

// GetUser retrieves a single user.
func (r *UserRepo) GetUser(ctx context.Context, id string) (models.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return row.toModel()
}

// GetUsers returns the users with the given IDs. Unknown IDs are skipped.
func (r *UserRepo) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY name`, pq.Array(ids)); err != nil {
		return nil, err
	}
	return toUsers(rows)
}

// SetPresence records the connection state of a user.
func (r *UserRepo) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	return r.execOne(ctx, `UPDATE users SET is_online=$2, last_seen=$3, updated_at=NOW() WHERE id=$1`, id, online, lastSeen)
}

// SetStatus records the self-declared status of a user.
func (r *UserRepo) SetStatus(ctx context.Context, id string, status models.Status) error {
	return r.execOne(ctx, `UPDATE users SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
}

// AddFriendship adds each user to the other's friend set.
func (r *UserRepo) AddFriendship(ctx context.Context, a, b string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		const q = `UPDATE users SET friends = array_append(array_remove(friends, $2), $2), updated_at=NOW() WHERE id=$1`
		if err := execOneTx(ctx, tx, q, a, b); err != nil {
			return err
		}
		return execOneTx(ctx, tx, q, b, a)
	})
}

// RemoveFriendship removes each user from the other's friend set.
func (r *UserRepo) RemoveFriendship(ctx context.Context, a, b string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		const q = `UPDATE users SET friends = array_remove(friends, $2), updated_at=NOW() WHERE id=$1`
		if err := execOneTx(ctx, tx, q, a, b); err != nil {
			return err
		}
		return execOneTx(ctx, tx, q, b, a)
	})
}

// Block adds blockedID to the blocker's list and removes the friend edge on both sides.
func (r *UserRepo) Block(ctx context.Context, blockerID, blockedID string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := execOneTx(ctx, tx, `UPDATE users
            SET blocked_users = array_append(array_remove(blocked_users, $2), $2),
                friends = array_remove(friends, $2),
                updated_at = NOW()
            WHERE id=$1`, blockerID, blockedID); err != nil {
			return err
		}
		return execOneTx(ctx, tx, `UPDATE users SET friends = array_remove(friends, $2), updated_at=NOW() WHERE id=$1`, blockedID, blockerID)
	})
}

// Unblock removes blockedID from the blocker's list.
func (r *UserRepo) Unblock(ctx context.Context, blockerID, blockedID string) error {
	return r.execOne(ctx, `UPDATE users SET blocked_users = array_remove(blocked_users, $2), updated_at=NOW() WHERE id=$1`, blockerID, blockedID)
}

// PutIncognito replaces the record for rec.ChatID.
func (r *UserRepo) PutIncognito(ctx context.Context, userID string, rec models.IncognitoRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.execOne(ctx, `UPDATE users SET incognito_chats = (
            SELECT COALESCE(jsonb_agg(e), '[]'::jsonb) FROM jsonb_array_elements(incognito_chats) e
            WHERE e->>'chatId' <> $2
        ) || jsonb_build_array($3::jsonb), updated_at=NOW()
        WHERE id=$1`, userID, rec.ChatID, string(body))
}

// RemoveIncognito drops the record for chatID.
func (r *UserRepo) RemoveIncognito(ctx context.Context, userID, chatID string) error {
	return r.execOne(ctx, `UPDATE users SET incognito_chats = (
            SELECT COALESCE(jsonb_agg(e), '[]'::jsonb) FROM jsonb_array_elements(incognito_chats) e
            WHERE e->>'chatId' <> $2
        ), updated_at=NOW()
        WHERE id=$1`, userID, chatID)
}

// RemoveExpiredIncognito drops records for chatID that expired at or before now.
func (r *UserRepo) RemoveExpiredIncognito(ctx context.Context, userID, chatID string, now time.Time) error {
	return r.execOne(ctx, `UPDATE users SET incognito_chats = (
            SELECT COALESCE(jsonb_agg(e), '[]'::jsonb) FROM jsonb_array_elements(incognito_chats) e
            WHERE NOT (e->>'chatId' = $2 AND (e->>'expiresAt')::timestamptz <= $3)
        ), updated_at=NOW()
        WHERE id=$1`, userID, chatID, now)
}

// ListWithIncognito returns every user holding at least one incognito record.
func (r *UserRepo) ListWithIncognito(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users WHERE jsonb_array_length(incognito_chats) > 0`); err != nil {
		return nil, err
	}
	return toUsers(rows)
}

func (r *UserRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *UserRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func execOneTx(ctx context.Context, tx *sqlx.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

func requireRow(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}

func toUsers(rows []userRow) ([]models.User, error) {
	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilRecords(r []models.IncognitoRecord) []models.IncognitoRecord {
	if r == nil {
		return []models.IncognitoRecord{}
	}
	return r
}
