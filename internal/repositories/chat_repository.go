package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"chatline/internal/models"
)

const chatColumns = `c.id, c.is_group, c.name, c.created_at, c.updated_at`

const memberColumns = `cm.id, cm.chat_id, cm.user_id, u.name, cm.is_admin, cm.nickname, cm.bubble_color, cm.joined_at, cm.left_at`

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	FindOrCreateDirectChat(ctx context.Context, userA, userB int) (models.Chat, bool, error)
	CreateGroupChat(ctx context.Context, name *string, adminID int, memberIDs []int) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID int, limit int) ([]models.Chat, error)
	ListMembers(ctx context.Context, chatID int) ([]models.Member, error)
	GetMember(ctx context.Context, chatID int, userID int) (models.Member, error)
	ActiveMemberIDs(ctx context.Context, chatID int) ([]int, error)
	LeaveChat(ctx context.Context, chatID int, userID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats c WHERE c.id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// FindOrCreateDirectChat returns the direct chat between two users, creating
// it with both members joined now when none exists. The pair is serialized by
// a transaction-scoped advisory lock so concurrent callers get the same chat.
func (r *ChatRepo) FindOrCreateDirectChat(ctx context.Context, userA, userB int) (chat models.Chat, created bool, err error) {
	pair := []int{userA, userB}
	sort.Ints(pair)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`, pair[0], pair[1]); err != nil {
		return models.Chat{}, false, err
	}

	err = tx.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats c
        WHERE c.is_group = FALSE
        AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id = c.id AND user_id = $1)
        AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id = c.id AND user_id = $2)
        ORDER BY c.id LIMIT 1`, pair[0], pair[1])
	switch {
	case err == nil:
		return chat, false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return models.Chat{}, false, err
	}

	if err = tx.GetContext(ctx, &chat, `INSERT INTO chats (is_group) VALUES (FALSE) RETURNING id, is_group, name, created_at, updated_at`); err != nil {
		return models.Chat{}, false, err
	}
	for _, id := range pair {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES ($1, $2, NOW())`, chat.ID, id); err != nil {
			return models.Chat{}, false, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Chat{}, false, err
	}
	return chat, true, nil
}

// CreateGroupChat creates a group chat and its members atomically.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, name *string, adminID int, memberIDs []int) (chat models.Chat, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.GetContext(ctx, &chat, `INSERT INTO chats (is_group, name) VALUES (TRUE, $1) RETURNING id, is_group, name, created_at, updated_at`, name); err != nil {
		return models.Chat{}, err
	}

	// admin first, then the rest deduplicated in id order
	memberSet := map[int]struct{}{}
	for _, id := range memberIDs {
		if id != adminID {
			memberSet[id] = struct{}{}
		}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id, is_admin, joined_at) VALUES ($1, $2, TRUE, NOW())`, chat.ID, adminID); err != nil {
		return models.Chat{}, err
	}
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES ($1, $2, NOW())`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// ListChatsForUser returns the user's active chats, most recently active first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int, limit int) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c
        JOIN chat_members cm ON cm.chat_id = c.id AND cm.user_id = $1 AND cm.left_at IS NULL
        LEFT JOIN LATERAL (SELECT sent_at FROM messages WHERE chat_id = c.id ORDER BY id DESC LIMIT 1) lm ON TRUE
        ORDER BY COALESCE(lm.sent_at, c.created_at) DESC
        LIMIT $2`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID, limit)
	return chats, err
}

// ListMembers returns every member of the chat, including those who left.
func (r *ChatRepo) ListMembers(ctx context.Context, chatID int) ([]models.Member, error) {
	var members []models.Member
	err := r.db.SelectContext(ctx, &members, `SELECT `+memberColumns+` FROM chat_members cm
        JOIN users u ON u.id = cm.user_id
        WHERE cm.chat_id = $1 ORDER BY cm.joined_at, cm.id`, chatID)
	return members, err
}

// GetMember fetches one membership row.
func (r *ChatRepo) GetMember(ctx context.Context, chatID int, userID int) (models.Member, error) {
	var member models.Member
	err := r.db.GetContext(ctx, &member, `SELECT `+memberColumns+` FROM chat_members cm
        JOIN users u ON u.id = cm.user_id
        WHERE cm.chat_id = $1 AND cm.user_id = $2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Member{}, ErrMemberNotFound
	}
	return member, err
}

// ActiveMemberIDs returns the ids of members who have not left.
func (r *ChatRepo) ActiveMemberIDs(ctx context.Context, chatID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM chat_members WHERE chat_id = $1 AND left_at IS NULL ORDER BY user_id`, chatID)
	return ids, err
}

// LeaveChat soft-leaves the member.
func (r *ChatRepo) LeaveChat(ctx context.Context, chatID int, userID int) error {
	return r.execMember(ctx, `UPDATE chat_members SET left_at = NOW() WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL`, chatID, userID)
}

func (r *ChatRepo) execMember(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}
