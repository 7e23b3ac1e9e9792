package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pairchat/internal/models"
)

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, receiver_id, message_type, content, is_delivered, delivered_at,
	is_read, read_at, reactions, reply_to, is_deleted, deleted_at, created_at, updated_at`

type messageRow struct {
	ID          string       `db:"id"`
	ChatID      string       `db:"chat_id"`
	SenderID    string       `db:"sender_id"`
	ReceiverID  string       `db:"receiver_id"`
	Type        string       `db:"message_type"`
	Content     []byte       `db:"content"`
	IsDelivered bool         `db:"is_delivered"`
	DeliveredAt sql.NullTime `db:"delivered_at"`
	IsRead      bool         `db:"is_read"`
	ReadAt      sql.NullTime `db:"read_at"`
	Reactions   []byte       `db:"reactions"`
	ReplyTo     []byte       `db:"reply_to"`
	IsDeleted   bool         `db:"is_deleted"`
	DeletedAt   sql.NullTime `db:"deleted_at"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

func (r messageRow) toModel() (models.Message, error) {
	m := models.Message{
		ID:          r.ID,
		ChatID:      r.ChatID,
		SenderID:    r.SenderID,
		ReceiverID:  r.ReceiverID,
		Type:        models.MessageType(r.Type),
		IsDelivered: r.IsDelivered,
		DeliveredAt: timePtr(r.DeliveredAt),
		IsRead:      r.IsRead,
		ReadAt:      timePtr(r.ReadAt),
		IsDeleted:   r.IsDeleted,
		DeletedAt:   timePtr(r.DeletedAt),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Content, &m.Content); err != nil {
		return models.Message{}, fmt.Errorf("decode content: %w", err)
	}
	if len(r.Reactions) > 0 {
		if err := json.Unmarshal(r.Reactions, &m.Reactions); err != nil {
			return models.Message{}, fmt.Errorf("decode reactions: %w", err)
		}
	}
	if len(r.ReplyTo) > 0 {
		var reply models.ReplySnapshot
		if err := json.Unmarshal(r.ReplyTo, &reply); err != nil {
			return models.Message{}, fmt.Errorf("decode reply: %w", err)
		}
		m.ReplyTo = &reply
	}
	return m, nil
}

// Create stores a message.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return models.Message{}, err
	}
	reactions, err := json.Marshal(nonNilReactions(msg.Reactions))
	if err != nil {
		return models.Message{}, err
	}
	var reply []byte
	if msg.ReplyTo != nil {
		if reply, err = json.Marshal(msg.ReplyTo); err != nil {
			return models.Message{}, err
		}
	}

	var row messageRow
	err = r.db.QueryRowxContext(ctx, `INSERT INTO messages
        (id, chat_id, sender_id, receiver_id, message_type, content, is_delivered, delivered_at, reactions, reply_to, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
        RETURNING `+messageColumns,
		msg.ID, msg.ChatID, msg.SenderID, msg.ReceiverID, string(msg.Type), content,
		msg.IsDelivered, msg.DeliveredAt, reactions, reply, msg.CreatedAt).
		StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel()
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, id string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel()
}

// ListByChat returns the latest limit messages, oldest first.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	query := `SELECT * FROM (
            SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1 ORDER BY created_at DESC LIMIT $2
        ) latest ORDER BY created_at ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, chatID, limit); err != nil {
		return nil, err
	}
	return toMessages(rows)
}

// ListIDsByChat returns the IDs of every message in the chat.
func (r *MessageRepo) ListIDsByChat(ctx context.Context, chatID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM messages WHERE chat_id=$1`, chatID)
	return ids, err
}

// ListUndelivered returns messages addressed to receiverID that were never delivered.
func (r *MessageRepo) ListUndelivered(ctx context.Context, receiverID string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
        WHERE receiver_id=$1 AND is_delivered = FALSE AND is_deleted = FALSE
        ORDER BY created_at ASC`, receiverID)
	if err != nil {
		return nil, err
	}
	return toMessages(rows)
}

// MarkDelivered sets the delivery flag if it is not already set.
func (r *MessageRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_delivered = TRUE, delivered_at=$2, updated_at=NOW()
        WHERE id=$1 AND is_delivered = FALSE`, id, at)
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, id)
}

// MarkRead sets the read flag, and the delivery flag with it, if not already set.
func (r *MessageRepo) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET
            is_read = TRUE, read_at=$2,
            is_delivered = TRUE, delivered_at = COALESCE(delivered_at, $2),
            updated_at=NOW()
        WHERE id=$1 AND is_read = FALSE`, id, at)
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, id)
}

// MarkChatRead marks senderID's unread messages in chatID as read.
func (r *MessageRepo) MarkChatRead(ctx context.Context, chatID, senderID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET
            is_read = TRUE, read_at=$3,
            is_delivered = TRUE, delivered_at = COALESCE(delivered_at, $3),
            updated_at=NOW()
        WHERE chat_id=$1 AND sender_id=$2 AND is_read = FALSE`, chatID, senderID, at)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// UpdateReactions overwrites the reaction list.
func (r *MessageRepo) UpdateReactions(ctx context.Context, id string, reactions []models.Reaction) error {
	body, err := json.Marshal(nonNilReactions(reactions))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET reactions=$2, updated_at=NOW() WHERE id=$1`, id, body)
	if err != nil {
		return err
	}
	return requireRow(res, ErrMessageNotFound)
}

// SoftDelete hides a message and clears its content.
func (r *MessageRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE, deleted_at=$2, content='{}', updated_at=NOW()
        WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res, ErrMessageNotFound)
}

// Delete removes a message permanently.
func (r *MessageRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// DeleteByChat removes every message of a chat.
func (r *MessageRepo) DeleteByChat(ctx context.Context, chatID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, chatID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// changedOrMissing distinguishes a no-op conditional update from a missing row.
func (r *MessageRepo) changedOrMissing(ctx context.Context, res sql.Result, id string) (bool, error) {
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1)`, id); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrMessageNotFound
	}
	return false, nil
}

func toMessages(rows []messageRow) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nonNilReactions(r []models.Reaction) []models.Reaction {
	if r == nil {
		return []models.Reaction{}
	}
	return r
}
