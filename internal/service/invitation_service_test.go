package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/model"
)

func seedInvitation(f *fixture, exam *model.Exam, email string) *model.Invitation {
	inv := &model.Invitation{
		Token:        model.NewInvitationToken(),
		ExamID:       exam.ID,
		StudentEmail: email,
		Status:       model.InvitationPending,
		ExpiresAt:    f.clk.Now().Add(72 * time.Hour),
	}
	_ = f.invs.Create(context.Background(), inv)
	return inv
}

func TestInvitationValidate(t *testing.T) {
	f := newFixture(t)
	exam := f.seedExam()
	ctx := context.Background()

	t.Run("pending token is valid", func(t *testing.T) {
		inv := seedInvitation(f, exam, "alice@school.test")

		check, err := f.invSvc.Validate(ctx, inv.Token)
		require.NoError(t, err)
		assert.True(t, check.Valid)
		assert.False(t, check.AlreadyRedeemed)
		require.NotNil(t, check.Exam)
		assert.Equal(t, exam.ID, check.Exam.ID)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.invSvc.Validate(ctx, "no-such-token")
		assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
	})

	t.Run("expiry is applied lazily", func(t *testing.T) {
		inv := seedInvitation(f, exam, "bob@school.test")
		f.clk.Advance(73 * time.Hour)
		defer f.clk.Set(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

		_, err := f.invSvc.Validate(ctx, inv.Token)
		assert.ErrorIs(t, err, apperrors.ErrTokenExpired)

		stored, gerr := f.invs.GetByToken(ctx, inv.Token)
		require.NoError(t, gerr)
		assert.Equal(t, model.InvitationExpired, stored.Status)
	})

	t.Run("redeemed token reports redeemed, not an error", func(t *testing.T) {
		inv := seedInvitation(f, exam, "carol@school.test")
		_, err := f.invs.Redeem(ctx, inv.Token, f.clk.Now())
		require.NoError(t, err)

		check, err := f.invSvc.Validate(ctx, inv.Token)
		require.NoError(t, err)
		assert.False(t, check.Valid)
		assert.True(t, check.AlreadyRedeemed)
	})
}

func TestInvitationRedeem(t *testing.T) {
	f := newFixture(t)
	exam := f.seedExam()
	ctx := context.Background()

	t.Run("provisions account and logs in", func(t *testing.T) {
		inv := seedInvitation(f, exam, "dave@school.test")

		res, err := f.invSvc.Redeem(ctx, inv.Token)
		require.NoError(t, err)
		assert.Equal(t, exam.ID, res.ExamID)
		assert.Equal(t, "dave@school.test", res.StudentEmail)
		assert.NotEmpty(t, res.AccessToken)
		assert.NotEmpty(t, res.TemporaryPassword)

		user, err := f.users.GetByEmail(ctx, "dave@school.test")
		require.NoError(t, err)
		assert.Equal(t, model.RoleStudent, user.Role)
		require.NoError(t, f.auth.CheckPassword(user.PasswordHash, res.TemporaryPassword))

		claims, err := f.auth.ValidateToken(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("existing account keeps its password", func(t *testing.T) {
		f.seedStudent("erin@school.test")
		inv := seedInvitation(f, exam, "erin@school.test")

		res, err := f.invSvc.Redeem(ctx, inv.Token)
		require.NoError(t, err)
		assert.Empty(t, res.TemporaryPassword)
	})

	t.Run("second redemption fails", func(t *testing.T) {
		inv := seedInvitation(f, exam, "frank@school.test")

		_, err := f.invSvc.Redeem(ctx, inv.Token)
		require.NoError(t, err)
		_, err = f.invSvc.Redeem(ctx, inv.Token)
		assert.ErrorIs(t, err, apperrors.ErrTokenAlreadyRedeemed)
	})
}

func TestInvitationRedeemConcurrent(t *testing.T) {
	f := newFixture(t)
	exam := f.seedExam()
	inv := seedInvitation(f, exam, "race@school.test")
	ctx := context.Background()

	const attempts = 16
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.invSvc.Redeem(ctx, inv.Token); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	stored, err := f.invs.GetByToken(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationRedeemed, stored.Status)
}

func TestCreateInvitation(t *testing.T) {
	f := newFixture(t)
	exam := f.seedExam()
	ctx := context.Background()

	t.Run("owner issues a pending token", func(t *testing.T) {
		inv, err := f.invSvc.CreateInvitation(ctx, exam.CreatedBy, exam.ID, &model.CreateInvitationRequest{
			StudentEmail: "Grace@School.Test",
		})
		require.NoError(t, err)
		assert.Equal(t, model.InvitationPending, inv.Status)
		assert.Equal(t, "grace@school.test", inv.StudentEmail)
		assert.NotEmpty(t, inv.Token)
		assert.Equal(t, f.clk.Now().Add(f.cfg.InvitationTTL), inv.ExpiresAt)
	})

	t.Run("explicit TTL overrides the default", func(t *testing.T) {
		inv, err := f.invSvc.CreateInvitation(ctx, exam.CreatedBy, exam.ID, &model.CreateInvitationRequest{
			StudentEmail: "heidi@school.test",
			TTLHours:     2,
		})
		require.NoError(t, err)
		assert.Equal(t, f.clk.Now().Add(2*time.Hour), inv.ExpiresAt)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		_, err := f.invSvc.CreateInvitation(ctx, uuid.New(), exam.ID, &model.CreateInvitationRequest{
			StudentEmail: "ivan@school.test",
		})
		assert.ErrorIs(t, err, apperrors.ErrNotExamOwner)
	})
}
