package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pairchat/internal/models"
)

const uniqueViolation = "23505"

// ChatRequestRepo is a sqlx-backed ChatRequestRepository.
type ChatRequestRepo struct {
	db *sqlx.DB
}

// NewChatRequestRepo constructs ChatRequestRepo.
func NewChatRequestRepo(db *sqlx.DB) *ChatRequestRepo {
	return &ChatRequestRepo{db: db}
}

const requestColumns = `id, sender_id, receiver_id, pair_key, status, created_at, updated_at`

// Create inserts a pending request. The partial unique index on pair_key rejects a second pending one.
func (r *ChatRequestRepo) Create(ctx context.Context, req models.ChatRequest) (models.ChatRequest, error) {
	var created models.ChatRequest
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_requests (id, sender_id, receiver_id, pair_key, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        RETURNING `+requestColumns,
		req.ID, req.SenderID, req.ReceiverID, req.PairKey, string(req.Status), req.CreatedAt).
		StructScan(&created)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.ChatRequest{}, ErrPendingRequestExists
	}
	return created, err
}

// Get retrieves a single request.
func (r *ChatRequestRepo) Get(ctx context.Context, id string) (models.ChatRequest, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM chat_requests WHERE id=$1`, id)
}

// FindPending returns the pending request of a pair.
func (r *ChatRequestRepo) FindPending(ctx context.Context, pairKey string) (models.ChatRequest, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM chat_requests WHERE pair_key=$1 AND status='pending'`, pairKey)
}

// Latest returns the newest request of a pair.
func (r *ChatRequestRepo) Latest(ctx context.Context, pairKey string) (models.ChatRequest, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM chat_requests WHERE pair_key=$1 ORDER BY created_at DESC LIMIT 1`, pairKey)
}

// ListPending returns pending requests sent or received by userID, newest first.
func (r *ChatRequestRepo) ListPending(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	var reqs []models.ChatRequest
	err := r.db.SelectContext(ctx, &reqs, `SELECT `+requestColumns+` FROM chat_requests
        WHERE status='pending' AND (sender_id=$1 OR receiver_id=$1)
        ORDER BY created_at DESC`, userID)
	return reqs, err
}

// Resolve moves a pending request to its terminal status.
func (r *ChatRequestRepo) Resolve(ctx context.Context, id string, status models.RequestStatus, at time.Time) (models.ChatRequest, error) {
	return r.getOne(ctx, `UPDATE chat_requests SET status=$2, updated_at=$3
        WHERE id=$1 AND status='pending'
        RETURNING `+requestColumns, id, string(status), at)
}

// DeletePending removes a request that is still pending.
func (r *ChatRequestRepo) DeletePending(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_requests WHERE id=$1 AND status='pending'`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrChatRequestNotFound)
}

func (r *ChatRequestRepo) getOne(ctx context.Context, query string, args ...any) (models.ChatRequest, error) {
	var req models.ChatRequest
	err := r.db.GetContext(ctx, &req, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRequest{}, ErrChatRequestNotFound
	}
	return req, err
}

// NewPostgresStore wires the sqlx repositories over one pool.
func NewPostgresStore(db *sqlx.DB) Store {
	return Store{
		Users:    NewUserRepo(db),
		Messages: NewMessageRepo(db),
		Requests: NewChatRequestRepo(db),
		close:    func(context.Context) error { return db.Close() },
	}
}
