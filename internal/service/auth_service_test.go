package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/model"
)

func TestPasswordHashing(t *testing.T) {
	f := newFixture(t)

	hash, err := f.auth.HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.NoError(t, f.auth.CheckPassword(hash, "s3cret-pass"))
	assert.ErrorIs(t, f.auth.CheckPassword(hash, "wrong"), apperrors.ErrInvalidCredentials)
}

func TestStudentSingleDeviceLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := f.auth.GenerateStudentToken(ctx, userID, "student@school.test")
	require.NoError(t, err)

	claims, err := f.auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, claims.Role)
	assert.Equal(t, userID, claims.UserID)
	require.NoError(t, f.auth.ValidateStudentLogin(ctx, userID, claims.ID))

	t.Run("second device is rejected", func(t *testing.T) {
		_, err := f.auth.GenerateStudentToken(ctx, userID, "student@school.test")
		assert.ErrorIs(t, err, ErrSessionAlreadyActive)
	})

	t.Run("replace takes over the slot", func(t *testing.T) {
		replacement, err := f.auth.ReplaceStudentToken(ctx, userID, "student@school.test")
		require.NoError(t, err)

		newClaims, err := f.auth.ValidateToken(replacement)
		require.NoError(t, err)
		require.NoError(t, f.auth.ValidateStudentLogin(ctx, userID, newClaims.ID))

		// The first device's JTI no longer matches.
		assert.Error(t, f.auth.ValidateStudentLogin(ctx, userID, claims.ID))
	})

	t.Run("reset frees the slot", func(t *testing.T) {
		require.NoError(t, f.auth.ResetStudentLogin(ctx, userID))
		_, err := f.auth.GenerateStudentToken(ctx, userID, "student@school.test")
		assert.NoError(t, err)
	})
}

func TestTeacherToken(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	token, err := f.auth.GenerateTeacherToken(userID, "teacher@school.test")
	require.NoError(t, err)

	claims, err := f.auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTeacher, claims.Role)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "teacher@school.test", claims.Email)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}
