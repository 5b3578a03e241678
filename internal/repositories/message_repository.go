package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chatline/internal/models"
)

const messageColumns = `id, chat_id, user_id, kind, status_type, content, edited_content, attachment_key, sent_at, delivered_at, read_at, edited_at, deleted_at, created_at, updated_at`

const authoredSelect = `SELECT m.id, m.chat_id, m.user_id, m.kind, m.status_type, m.content, m.edited_content, m.attachment_key,
        m.sent_at, m.delivered_at, m.read_at, m.edited_at, m.deleted_at, m.created_at, m.updated_at,
        u.name AS author_name, cm.nickname AS author_nickname
    FROM messages m
    LEFT JOIN users u ON u.id = m.user_id
    LEFT JOIN chat_members cm ON cm.chat_id = m.chat_id AND cm.user_id = m.user_id`

// MessageRepository is the append-only message store. Only the soft-state
// columns of an existing row ever change.
type MessageRepository interface {
	Append(ctx context.Context, msg models.NewMessage) (models.Message, error)
	ApplyOverride(ctx context.Context, o models.MemberOverride, status models.NewMessage) (models.Message, error)
	JoinMembers(ctx context.Context, chatID int, userIDs []int, status StatusFunc) ([]int, *models.Message, error)
	FindByID(ctx context.Context, messageID int) (models.AuthoredMessage, error)
	LatestForChat(ctx context.Context, chatID int) (models.AuthoredMessage, bool, error)
	OldestIDForChat(ctx context.Context, chatID int) (int, bool, error)
	PageBefore(ctx context.Context, chatID int, before int, floor int, limit int) ([]models.AuthoredMessage, error)
	MarkReceipt(ctx context.Context, chatID int, readerID int, upToID int, kind models.ReceiptKind) (int64, error)
	Edit(ctx context.Context, messageID int, authorID int, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID int, authorID int) (models.Message, error)
}

// StatusFunc builds the status message announcing the users that joined. An
// error aborts the whole join.
type StatusFunc func(joined []int) (models.NewMessage, error)

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores a message and returns it with its database-assigned id and
// send time. The chat must exist and a non-nil author must be an active member.
func (r *MessageRepo) Append(ctx context.Context, in models.NewMessage) (msg models.Message, err error) {
	err = r.inTx(ctx, func(tx *sqlx.Tx) error {
		msg, err = appendTx(ctx, tx, in)
		return err
	})
	return msg, err
}

// ApplyOverride writes one member display attribute and appends the status
// message describing it in the same transaction.
func (r *MessageRepo) ApplyOverride(ctx context.Context, o models.MemberOverride, status models.NewMessage) (msg models.Message, err error) {
	var query string
	switch o.Field {
	case models.OverrideNickname:
		query = `UPDATE chat_members SET nickname = $3 WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL`
	case models.OverrideBubbleColor:
		query = `UPDATE chat_members SET bubble_color = $3 WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL`
	default:
		return models.Message{}, fmt.Errorf("unknown override field %q", o.Field)
	}

	err = r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, o.ChatID, o.UserID, o.Value)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrMemberNotFound
		}
		msg, err = appendTx(ctx, tx, status)
		return err
	})
	return msg, err
}

// JoinMembers joins users to the chat, re-activating members who had left and
// skipping those already active. When anyone joined, the message built by
// status is appended before commit.
func (r *MessageRepo) JoinMembers(ctx context.Context, chatID int, userIDs []int, status StatusFunc) (joined []int, msg *models.Message, err error) {
	err = r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, id := range userIDs {
			var userID int
			err := tx.QueryRowxContext(ctx, `INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES ($1, $2, NOW())
            ON CONFLICT (chat_id, user_id) DO UPDATE SET left_at = NULL, joined_at = NOW()
            WHERE chat_members.left_at IS NOT NULL
            RETURNING user_id`, chatID, id).Scan(&userID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			joined = append(joined, userID)
		}
		if len(joined) == 0 {
			return nil
		}

		in, err := status(joined)
		if err != nil {
			return err
		}
		stored, err := appendTx(ctx, tx, in)
		if err != nil {
			return err
		}
		msg = &stored
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return joined, msg, nil
}

func (r *MessageRepo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func appendTx(ctx context.Context, tx *sqlx.Tx, in models.NewMessage) (models.Message, error) {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`, in.ChatID); err != nil {
		return models.Message{}, err
	}
	if !exists {
		return models.Message{}, ErrChatNotFound
	}

	if in.UserID != nil {
		var active bool
		if err := tx.GetContext(ctx, &active, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL)`, in.ChatID, *in.UserID); err != nil {
			return models.Message{}, err
		}
		if !active {
			return models.Message{}, ErrNotActiveMember
		}
	}

	kind := in.Kind
	if kind == "" {
		kind = models.KindContent
	}
	var msg models.Message
	if err := tx.GetContext(ctx, &msg, `INSERT INTO messages (chat_id, user_id, kind, status_type, content, attachment_key, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING `+messageColumns,
		in.ChatID, in.UserID, kind, in.StatusType, in.Content, in.AttachmentKey); err != nil {
		return models.Message{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = NOW() WHERE id=$1`, in.ChatID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// FindByID retrieves a single message with its author.
func (r *MessageRepo) FindByID(ctx context.Context, messageID int) (models.AuthoredMessage, error) {
	var msg models.AuthoredMessage
	err := r.db.GetContext(ctx, &msg, authoredSelect+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AuthoredMessage{}, ErrMessageNotFound
	}
	return msg, err
}

// LatestForChat returns the message with the highest id in the chat.
func (r *MessageRepo) LatestForChat(ctx context.Context, chatID int) (models.AuthoredMessage, bool, error) {
	var msg models.AuthoredMessage
	err := r.db.GetContext(ctx, &msg, authoredSelect+` WHERE m.chat_id=$1 ORDER BY m.id DESC LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AuthoredMessage{}, false, nil
	}
	if err != nil {
		return models.AuthoredMessage{}, false, err
	}
	return msg, true, nil
}

// OldestIDForChat returns the lowest message id stored for the chat.
func (r *MessageRepo) OldestIDForChat(ctx context.Context, chatID int) (int, bool, error) {
	var oldest sql.NullInt64
	if err := r.db.GetContext(ctx, &oldest, `SELECT MIN(id) FROM messages WHERE chat_id=$1`, chatID); err != nil {
		return 0, false, err
	}
	if !oldest.Valid {
		return 0, false, nil
	}
	return int(oldest.Int64), true, nil
}

// PageBefore returns up to limit messages with floor <= id < before, newest first.
func (r *MessageRepo) PageBefore(ctx context.Context, chatID int, before int, floor int, limit int) ([]models.AuthoredMessage, error) {
	msgs := []models.AuthoredMessage{}
	err := r.db.SelectContext(ctx, &msgs, authoredSelect+`
        WHERE m.chat_id=$1 AND m.id < $2 AND m.id >= $3
        ORDER BY m.id DESC
        LIMIT $4`, chatID, before, floor, limit)
	return msgs, err
}

// MarkReceipt stamps delivered_at or read_at on messages from other members up
// to and including upToID that do not carry the stamp yet.
func (r *MessageRepo) MarkReceipt(ctx context.Context, chatID int, readerID int, upToID int, kind models.ReceiptKind) (int64, error) {
	query := `UPDATE messages SET delivered_at = NOW(), updated_at = NOW()
        WHERE chat_id=$1 AND id <= $3 AND delivered_at IS NULL AND (user_id IS NULL OR user_id <> $2)`
	if kind == models.ReceiptRead {
		query = `UPDATE messages SET read_at = NOW(), delivered_at = COALESCE(delivered_at, NOW()), updated_at = NOW()
            WHERE chat_id=$1 AND id <= $3 AND read_at IS NULL AND (user_id IS NULL OR user_id <> $2)`
	}
	res, err := r.db.ExecContext(ctx, query, chatID, readerID, upToID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Edit stores a new body for the author's own live content message. The
// content as sent stays untouched.
func (r *MessageRepo) Edit(ctx context.Context, messageID int, authorID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET edited_content = $3, edited_at = NOW(), updated_at = NOW()
        WHERE id=$1 AND user_id=$2 AND kind = 'content' AND deleted_at IS NULL
        RETURNING `+messageColumns, messageID, authorID, content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDelete marks the author's own content message deleted.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int, authorID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET deleted_at = NOW(), updated_at = NOW()
        WHERE id=$1 AND user_id=$2 AND kind = 'content' AND deleted_at IS NULL
        RETURNING `+messageColumns, messageID, authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
