package services_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatline/internal/models"
	"chatline/internal/repositories"
)

// memMessages is an in-memory message store sharing one id sequence across
// chats, like a BIGSERIAL column.
type memMessages struct {
	mu      sync.Mutex
	nextID  int
	rows    []models.Message
	names   map[int]string
	members map[int]map[int]bool
	appends int

	overrides map[[2]int]map[models.OverrideField]string
	// failAppend, when set, fails the next append and is then cleared.
	failAppend error
}

func newMemMessages() *memMessages {
	return &memMessages{
		nextID:    1,
		names:     map[int]string{},
		members:   map[int]map[int]bool{},
		overrides: map[[2]int]map[models.OverrideField]string{},
	}
}

func (s *memMessages) join(chatID, userID int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[chatID] == nil {
		s.members[chatID] = map[int]bool{}
	}
	s.members[chatID][userID] = true
	s.names[userID] = name
}

func (s *memMessages) Append(_ context.Context, in models.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(in)
}

// checkAppend validates an append without storing it, so a unit of work can
// fail before mutating anything.
func (s *memMessages) checkAppend(in models.NewMessage) error {
	if err := s.failAppend; err != nil {
		s.failAppend = nil
		return err
	}
	if _, ok := s.members[in.ChatID]; !ok {
		return repositories.ErrChatNotFound
	}
	if in.UserID != nil && !s.members[in.ChatID][*in.UserID] {
		return repositories.ErrNotActiveMember
	}
	return nil
}

func (s *memMessages) appendLocked(in models.NewMessage) (models.Message, error) {
	if err := s.checkAppend(in); err != nil {
		return models.Message{}, err
	}
	now := time.Now()
	msg := models.Message{
		ID:            s.nextID,
		ChatID:        in.ChatID,
		UserID:        in.UserID,
		Kind:          in.Kind,
		StatusType:    in.StatusType,
		Content:       in.Content,
		AttachmentKey: in.AttachmentKey,
		SentAt:        now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.nextID++
	s.appends++
	s.rows = append(s.rows, msg)
	return msg, nil
}

func (s *memMessages) ApplyOverride(_ context.Context, o models.MemberOverride, status models.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.members[o.ChatID][o.UserID] {
		return models.Message{}, repositories.ErrMemberNotFound
	}
	if err := s.checkAppend(status); err != nil {
		return models.Message{}, err
	}
	key := [2]int{o.ChatID, o.UserID}
	if s.overrides[key] == nil {
		s.overrides[key] = map[models.OverrideField]string{}
	}
	s.overrides[key][o.Field] = o.Value
	return s.appendLocked(status)
}

func (s *memMessages) override(chatID, userID int, field models.OverrideField) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.overrides[[2]int{chatID, userID}][field]
	return v, ok
}

func (s *memMessages) JoinMembers(_ context.Context, chatID int, userIDs []int, status repositories.StatusFunc) ([]int, *models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var joined []int
	for _, id := range userIDs {
		if !s.members[chatID][id] {
			joined = append(joined, id)
		}
	}
	if len(joined) == 0 {
		return nil, nil, nil
	}
	in, err := status(joined)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkAppend(in); err != nil {
		return nil, nil, err
	}
	for _, id := range joined {
		s.members[chatID][id] = true
	}
	msg, err := s.appendLocked(in)
	if err != nil {
		return nil, nil, err
	}
	return joined, &msg, nil
}

func (s *memMessages) active(chatID, userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[chatID][userID]
}

func (s *memMessages) authored(m models.Message) models.AuthoredMessage {
	am := models.AuthoredMessage{Message: m}
	if m.UserID != nil {
		name := s.names[*m.UserID]
		am.AuthorName = &name
	}
	return am
}

func (s *memMessages) FindByID(_ context.Context, id int) (models.AuthoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ID == id {
			return s.authored(m), nil
		}
	}
	return models.AuthoredMessage{}, repositories.ErrMessageNotFound
}

func (s *memMessages) LatestForChat(_ context.Context, chatID int) (models.AuthoredMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].ChatID == chatID {
			return s.authored(s.rows[i]), true, nil
		}
	}
	return models.AuthoredMessage{}, false, nil
}

func (s *memMessages) OldestIDForChat(_ context.Context, chatID int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ChatID == chatID {
			return m.ID, true, nil
		}
	}
	return 0, false, nil
}

func (s *memMessages) PageBefore(_ context.Context, chatID, before, floor, limit int) ([]models.AuthoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuthoredMessage
	for _, m := range s.rows {
		if m.ChatID == chatID && m.ID < before && m.ID >= floor {
			out = append(out, s.authored(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memMessages) MarkReceipt(_ context.Context, chatID, readerID, upToID int, kind models.ReceiptKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for i := range s.rows {
		m := &s.rows[i]
		if m.ChatID != chatID || m.ID > upToID || (m.UserID != nil && *m.UserID == readerID) {
			continue
		}
		if kind == models.ReceiptRead && m.ReadAt == nil {
			m.ReadAt = &now
			n++
		}
		if kind == models.ReceiptDelivered && m.DeliveredAt == nil {
			m.DeliveredAt = &now
			n++
		}
	}
	return n, nil
}

func (s *memMessages) Edit(_ context.Context, id, authorID int, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		m := &s.rows[i]
		if m.ID == id && m.UserID != nil && *m.UserID == authorID && m.DeletedAt == nil {
			now := time.Now()
			m.EditedContent = &content
			m.EditedAt = &now
			return *m, nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (s *memMessages) SoftDelete(_ context.Context, id, authorID int) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		m := &s.rows[i]
		if m.ID == id && m.UserID != nil && *m.UserID == authorID && m.DeletedAt == nil {
			now := time.Now()
			m.DeletedAt = &now
			return *m, nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

var _ repositories.MessageRepository = (*memMessages)(nil)
