package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatline/internal/models"
)

// UserRepository reads the identity provider's users and friendships.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
	AreFriends(ctx context.Context, userID, friendID int) (bool, error)
	ListFriends(ctx context.Context, userID int) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, name, email FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches several users in one query, ordered by id.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	id64s := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, email FROM users WHERE id = ANY($1) ORDER BY id`, id64s)
	return users, err
}

// AreFriends reports whether a friendship row links the two users.
func (r *UserRepo) AreFriends(ctx context.Context, userID, friendID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM friendships
        WHERE (user_one_id=$1 AND user_two_id=$2) OR (user_one_id=$2 AND user_two_id=$1))`, userID, friendID)
	return exists, err
}

// ListFriends returns the user's friends ordered by name.
func (r *UserRepo) ListFriends(ctx context.Context, userID int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT DISTINCT u.id, u.name, u.email FROM users u
        JOIN friendships f ON (f.user_one_id = $1 AND f.user_two_id = u.id) OR (f.user_two_id = $1 AND f.user_one_id = u.id)
        ORDER BY u.name, u.id`, userID)
	return users, err
}
