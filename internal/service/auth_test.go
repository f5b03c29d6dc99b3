package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-platform/internal/models"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	_, auth, _ := newAuthFixture(t)

	encoded, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))
	assert.True(t, auth.verifyPassword(encoded, "correct horse"))
	assert.False(t, auth.verifyPassword(encoded, "wrong horse"))
	assert.False(t, auth.verifyPassword("plain", "plain"))

	other, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, other, "salt must differ")
}

func TestLoginAuthenticateLogout(t *testing.T) {
	f, auth, _ := newAuthFixture(t)
	ctx := WithClientIP(context.Background(), "10.0.0.7")

	user, err := auth.CreateUser(ctx, NewUser{Username: "lead", Password: "s3cret-pass", Role: models.RoleQALead, FullName: "Lead"})
	require.NoError(t, err)
	assert.True(t, user.IsActive)

	_, err = auth.Login(ctx, "lead", "nope-nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "ghost", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := auth.Login(ctx, "lead", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	require.NotNil(t, res.User.LastLogin)

	claims, err := auth.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleQALead, claims.Role)
	assert.NotEmpty(t, claims.ID)

	me, err := auth.Me(ctx, claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "lead", me.Username)

	require.NoError(t, auth.Logout(ctx, claims))
	_, err = auth.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	logs, err := f.activity.ListForEntity(ctx, models.EntityTypeUser, user.ID)
	require.NoError(t, err)
	var failed, succeeded int
	for _, l := range logs {
		if l.Action != models.ActionLogin {
			continue
		}
		if l.Success {
			succeeded++
		} else {
			failed++
		}
		require.NotNil(t, l.IPAddress)
		assert.Equal(t, "10.0.0.7", *l.IPAddress)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
}

func TestAuthenticateRejectsForgedAndInactive(t *testing.T) {
	f, auth, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := auth.CreateUser(ctx, NewUser{Username: "temp", Password: "password1", Role: models.RoleViewer, FullName: "Temp"})
	require.NoError(t, err)
	res, err := auth.Login(ctx, "temp", "password1")
	require.NoError(t, err)

	_, err = auth.Authenticate(ctx, res.AccessToken+"x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.db.Exec(`UPDATE users SET is_active = 0 WHERE username = 'temp'`)
	require.NoError(t, err)
	_, err = auth.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrUserInactive)
	_, err = auth.Login(ctx, "temp", "password1")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestRegister(t *testing.T) {
	f, auth, _ := newAuthFixture(t)
	ctx := context.Background()
	input := NewUser{Username: "newbie", Password: "longenough", Role: models.RoleQAAnalyst, FullName: "New Bie"}

	_, err := auth.Register(ctx, f.lead, input)
	assert.ErrorIs(t, err, ErrForbidden)

	user, err := auth.Register(ctx, f.admin, input)
	require.NoError(t, err)
	assert.Equal(t, models.RoleQAAnalyst, user.Role)

	_, err = auth.Register(ctx, f.admin, input)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = auth.Register(ctx, f.admin, NewUser{Username: "x", Password: "short", Role: "superuser"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Len(t, err.(*ValidationError).Problems, 4)
}
