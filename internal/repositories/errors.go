package repositories

import (
	"fmt"

	"chatline/internal/apperr"
)

var (
	ErrChatNotFound    = fmt.Errorf("chat %w", apperr.ErrNotFound)
	ErrMemberNotFound  = fmt.Errorf("member %w", apperr.ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", apperr.ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrNotActiveMember = fmt.Errorf("not an active chat member: %w", apperr.ErrForbidden)
)
