package identity

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/bissquit/airq-auth/internal/domain"
	"github.com/bissquit/airq-auth/internal/pkg/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLog_OnUserCreated(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	err := AuditLog{}.OnUserCreated(ctx, &domain.User{
		ID:           "u-1",
		Email:        "ada@example.com",
		PasswordHash: "hashed:secret",
		Role:         domain.RoleUser,
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "user registered")
	assert.Contains(t, out, "user_id=u-1")
	assert.NotContains(t, out, "hashed:secret")
}
