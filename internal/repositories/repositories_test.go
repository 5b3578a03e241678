package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/apperr"
	"chatline/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var chatCols = []string{"id", "is_group", "name", "created_at", "updated_at"}

func TestGetChatNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM chats c WHERE c.id=$1`)).
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	_, err := NewChatRepo(db).GetChat(context.Background(), 9)

	require.ErrorIs(t, err, ErrChatNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateDirectChatReusesExisting(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock`)).
		WithArgs(2, 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE c.is_group = FALSE`)).
		WithArgs(2, 5).
		WillReturnRows(sqlmock.NewRows(chatCols).AddRow(4, false, nil, now, now))
	mock.ExpectCommit()

	chat, created, err := NewChatRepo(db).FindOrCreateDirectChat(context.Background(), 5, 2)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 4, chat.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateDirectChatCreatesBothMembers(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock`)).
		WithArgs(2, 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE c.is_group = FALSE`)).
		WithArgs(2, 5).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chats (is_group) VALUES (FALSE)`)).
		WillReturnRows(sqlmock.NewRows(chatCols).AddRow(8, false, nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO chat_members`)).
		WithArgs(8, 2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO chat_members`)).
		WithArgs(8, 5).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	chat, created, err := NewChatRepo(db).FindOrCreateDirectChat(context.Background(), 2, 5)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 8, chat.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroupChatRollsBackOnMemberFailure(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	name := "crew"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chats (is_group, name) VALUES (TRUE, $1)`)).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows(chatCols).AddRow(11, true, name, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`is_admin, joined_at) VALUES ($1, $2, TRUE, NOW())`)).
		WithArgs(11, 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO chat_members (chat_id, user_id, joined_at)`)).
		WithArgs(11, 2).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := NewChatRepo(db).CreateGroupChat(context.Background(), &name, 1, []int{2, 1, 2})

	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateDirectChatLocksLargeIDs(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	big := 1 << 31

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`)).
		WithArgs(5, big).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE c.is_group = FALSE`)).
		WithArgs(5, big).
		WillReturnRows(sqlmock.NewRows(chatCols).AddRow(6, false, nil, now, now))
	mock.ExpectCommit()

	chat, _, err := NewChatRepo(db).FindOrCreateDirectChat(context.Background(), big, 5)

	require.NoError(t, err)
	assert.Equal(t, 6, chat.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

var messageCols = []string{"id", "chat_id", "user_id", "kind", "status_type", "content", "edited_content", "attachment_key",
	"sent_at", "delivered_at", "read_at", "edited_at", "deleted_at", "created_at", "updated_at"}

func expectStatusAppend(mock sqlmock.Sqlmock, chatID, userID, msgID int) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`)).
		WithArgs(chatID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_members WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL`)).
		WithArgs(chatID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(msgID, chatID, userID, "status", "nickname", "Ace", nil, nil, now, nil, nil, nil, nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chats SET updated_at = NOW()`)).
		WithArgs(chatID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestJoinMembersSkipsActiveMembers(t *testing.T) {
	db, mock := newMockDB(t)
	admin := 1

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (chat_id, user_id) DO UPDATE`)).
		WithArgs(11, 3).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (chat_id, user_id) DO UPDATE`)).
		WithArgs(11, 4).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	expectStatusAppend(mock, 11, admin, 40)
	mock.ExpectCommit()

	var seen []int
	joined, msg, err := NewMessageRepo(db).JoinMembers(context.Background(), 11, []int{3, 4},
		func(ids []int) (models.NewMessage, error) {
			seen = ids
			return models.NewMessage{ChatID: 11, UserID: &admin, Kind: models.KindStatus, Content: "carol"}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, []int{3}, joined)
	assert.Equal(t, []int{3}, seen)
	require.NotNil(t, msg)
	assert.Equal(t, 40, msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMembersRollsBackWhenStatusFails(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (chat_id, user_id) DO UPDATE`)).
		WithArgs(11, 3).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(3))
	mock.ExpectRollback()

	joined, msg, err := NewMessageRepo(db).JoinMembers(context.Background(), 11, []int{3},
		func([]int) (models.NewMessage, error) {
			return models.NewMessage{}, apperr.Invalid("content", "too long")
		})

	require.Error(t, err)
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, joined)
	assert.Nil(t, msg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMembersNobodyNewCommitsWithoutStatus(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (chat_id, user_id) DO UPDATE`)).
		WithArgs(11, 3).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectCommit()

	joined, msg, err := NewMessageRepo(db).JoinMembers(context.Background(), 11, []int{3},
		func([]int) (models.NewMessage, error) {
			t.Fatal("status built with nobody joined")
			return models.NewMessage{}, nil
		})

	require.NoError(t, err)
	assert.Empty(t, joined)
	assert.Nil(t, msg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOverrideWritesStatusInSameTx(t *testing.T) {
	db, mock := newMockDB(t)
	target := 9

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chat_members SET nickname = $3`)).
		WithArgs(4, 9, "Ace").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectStatusAppend(mock, 4, target, 41)
	mock.ExpectCommit()

	msg, err := NewMessageRepo(db).ApplyOverride(context.Background(),
		models.MemberOverride{ChatID: 4, UserID: 9, Field: models.OverrideNickname, Value: "Ace"},
		models.NewMessage{ChatID: 4, UserID: &target, Kind: models.KindStatus, Content: "Ace"})

	require.NoError(t, err)
	assert.Equal(t, 41, msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOverrideRollsBackWhenStatusInsertFails(t *testing.T) {
	db, mock := newMockDB(t)
	target := 9

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chat_members SET bubble_color = $3`)).
		WithArgs(4, 9, "#112233").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_members WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL`)).
		WithArgs(4, 9).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).ApplyOverride(context.Background(),
		models.MemberOverride{ChatID: 4, UserID: 9, Field: models.OverrideBubbleColor, Value: "#112233"},
		models.NewMessage{ChatID: 4, UserID: &target, Kind: models.KindStatus, Content: "#112233"})

	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOverrideMissingMember(t *testing.T) {
	db, mock := newMockDB(t)
	target := 9

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chat_members SET nickname = $3`)).
		WithArgs(4, 9, "Ace").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).ApplyOverride(context.Background(),
		models.MemberOverride{ChatID: 4, UserID: 9, Field: models.OverrideNickname, Value: "Ace"},
		models.NewMessage{ChatID: 4, UserID: &target, Kind: models.KindStatus})

	require.ErrorIs(t, err, ErrMemberNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRejectsInactiveAuthor(t *testing.T) {
	db, mock := newMockDB(t)
	author := 2

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_members WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL`)).
		WithArgs(4, 2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).Append(context.Background(), models.NewMessage{ChatID: 4, UserID: &author, Content: "hi"})

	require.ErrorIs(t, err, ErrNotActiveMember)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMissingChat(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).Append(context.Background(), models.NewMessage{ChatID: 4, Content: "hi"})

	require.ErrorIs(t, err, ErrChatNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendStoresMessage(t *testing.T) {
	db, mock := newMockDB(t)
	author := 2
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_members WHERE chat_id=$1`)).
		WithArgs(4, 2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(31, 4, 2, "content", nil, "hi", nil, nil, now, nil, nil, nil, nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chats SET updated_at = NOW()`)).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := NewMessageRepo(db).Append(context.Background(), models.NewMessage{ChatID: 4, UserID: &author, Content: "hi"})

	require.NoError(t, err)
	assert.Equal(t, 31, msg.ID)
	assert.Equal(t, models.KindContent, msg.Kind)
	require.NotNil(t, msg.UserID)
	assert.Equal(t, 2, *msg.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOldestIDForEmptyChat(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MIN(id) FROM messages WHERE chat_id=$1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	_, ok, err := NewMessageRepo(db).OldestIDForChat(context.Background(), 4)

	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPageBeforeUsesFloorAndLimit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`m.id < $2 AND m.id >= $3`)).
		WithArgs(4, 50, 10, 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "content", "author_name"}).
			AddRow(49, 4, "b", "bob").
			AddRow(48, 4, "a", "ann"))

	msgs, err := NewMessageRepo(db).PageBefore(context.Background(), 4, 50, 10, 25)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 49, msgs[0].ID)
	require.NotNil(t, msgs[1].AuthorName)
	assert.Equal(t, "ann", *msgs[1].AuthorName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadAlsoStampsDelivery(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`SET read_at = NOW(), delivered_at = COALESCE(delivered_at, NOW())`)).
		WithArgs(4, 1, 30).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewMessageRepo(db).MarkReceipt(context.Background(), 4, 1, 30, models.ReceiptRead)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEditForeignMessageNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE messages SET edited_content = $3`)).
		WithArgs(31, 9, "x").
		WillReturnError(sql.ErrNoRows)

	_, err := NewMessageRepo(db).Edit(context.Background(), 31, 9, "x")

	require.ErrorIs(t, err, ErrMessageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUsersEmpty(t *testing.T) {
	db, mock := newMockDB(t)

	users, err := NewUserRepo(db).BulkUsers(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUsers(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).
			AddRow(2, "bob", "bob@example.com").
			AddRow(3, "carol", "carol@example.com"))

	users, err := NewUserRepo(db).BulkUsers(context.Background(), []int{3, 2})

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAreFriends(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM friendships`)).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewUserRepo(db).AreFriends(context.Background(), 1, 2)

	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id=$1`)).
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepo(db).GetUser(context.Background(), 7)

	require.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEditKeepsOriginalContent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE messages SET edited_content = $3`)).
		WithArgs(31, 2, "final").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(31, 4, 2, "content", nil, "draft", "final", nil, now, nil, nil, now, nil, now, now))

	msg, err := NewMessageRepo(db).Edit(context.Background(), 31, 2, "final")

	require.NoError(t, err)
	assert.Equal(t, "draft", msg.Content)
	assert.Equal(t, "final", msg.Body())
	require.NoError(t, mock.ExpectationsWereMet())
}
