package identity

import (
	"context"

	"github.com/bissquit/airq-auth/internal/domain"
	"github.com/bissquit/airq-auth/internal/pkg/ctxlog"
)

// AuditLog records new accounts through the request logger.
type AuditLog struct{}

// OnUserCreated implements UserCreatedHandler.
func (AuditLog) OnUserCreated(ctx context.Context, user *domain.User) error {
	ctxlog.FromContext(ctx).Info("user registered",
		"user_id", user.ID,
		"role", string(user.Role),
	)
	return nil
}
