package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/model"
)

func TestAutosave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.seedStudent("student@school.test")
	exam := f.seedExam()
	q1 := seedQuestion(f, exam, 10)
	sess := joinAndStart(t, f, student, exam)

	t.Run("versions are dense and increasing", func(t *testing.T) {
		for i, text := range []string{"first", "second", "third"} {
			draft, err := f.ansSvc.Autosave(ctx, student.ID, sess.ID, &model.AutosaveRequest{
				QuestionID: q1,
				AnswerText: text,
			})
			require.NoError(t, err)
			assert.Equal(t, i+1, draft.VersionNumber)
			assert.Equal(t, text, draft.AnswerText)
		}
	})

	t.Run("empty text is a valid draft", func(t *testing.T) {
		draft, err := f.ansSvc.Autosave(ctx, student.ID, sess.ID, &model.AutosaveRequest{QuestionID: q1})
		require.NoError(t, err)
		assert.Equal(t, 4, draft.VersionNumber)
		assert.Empty(t, draft.AnswerText)
	})

	t.Run("version collision is retried once", func(t *testing.T) {
		f.answers.conflictNext = true
		draft, err := f.ansSvc.Autosave(ctx, student.ID, sess.ID, &model.AutosaveRequest{
			QuestionID: q1,
			AnswerText: "after retry",
		})
		require.NoError(t, err)
		assert.Equal(t, 5, draft.VersionNumber)
	})

	t.Run("question from another exam", func(t *testing.T) {
		_, err := f.ansSvc.Autosave(ctx, student.ID, sess.ID, &model.AutosaveRequest{
			QuestionID: uuid.New(),
			AnswerText: "lost",
		})
		assert.ErrorIs(t, err, apperrors.ErrQuestionNotFound)
	})

	t.Run("session not started", func(t *testing.T) {
		other := f.seedStudent("other@school.test")
		pending, err := f.sessSvc.Join(ctx, other.ID, other.Email, exam.ID, AccessKey{ExamCode: exam.ExamCode})
		require.NoError(t, err)

		_, err = f.ansSvc.Autosave(ctx, other.ID, pending.ID, &model.AutosaveRequest{QuestionID: q1, AnswerText: "x"})
		assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)
	})
}

func TestAutosaveConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.seedStudent("student@school.test")
	exam := f.seedExam()
	q1 := seedQuestion(f, exam, 10)
	sess := joinAndStart(t, f, student, exam)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ansSvc.Autosave(ctx, student.ID, sess.ID, &model.AutosaveRequest{
				QuestionID: q1,
				AnswerText: fmt.Sprintf("draft %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	drafts, err := f.ansSvc.ListVersions(ctx, student.ID, sess.ID, q1)
	require.NoError(t, err)
	require.Len(t, drafts, writers)
	for i, d := range drafts {
		assert.Equal(t, i+1, d.VersionNumber)
	}
}

func TestListVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.seedStudent("student@school.test")
	exam := f.seedExam()
	q1 := seedQuestion(f, exam, 10)
	sess := joinAndStart(t, f, student, exam)

	_, err := f.ansSvc.Autosave(ctx, student.ID, sess.ID, &model.AutosaveRequest{QuestionID: q1, AnswerText: "draft"})
	require.NoError(t, err)
	_, err = f.ansSvc.Autosave(ctx, student.ID, sess.ID, &model.AutosaveRequest{QuestionID: q1, AnswerText: "final"})
	require.NoError(t, err)

	t.Run("history survives completion", func(t *testing.T) {
		_, err := f.sessSvc.Complete(ctx, sess.ID, student.ID)
		require.NoError(t, err)

		drafts, err := f.ansSvc.ListVersions(ctx, student.ID, sess.ID, q1)
		require.NoError(t, err)
		require.Len(t, drafts, 2)
		assert.Equal(t, "draft", drafts[0].AnswerText)
		assert.Equal(t, "final", drafts[1].AnswerText)
	})

	t.Run("no drafts yields an empty list", func(t *testing.T) {
		drafts, err := f.ansSvc.ListVersions(ctx, student.ID, sess.ID, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, drafts)
		assert.NotNil(t, drafts)
	})

	t.Run("another student's history is off limits", func(t *testing.T) {
		stranger := f.seedStudent("stranger@school.test")
		_, err := f.ansSvc.ListVersions(ctx, stranger.ID, sess.ID, q1)
		assert.ErrorIs(t, err, apperrors.ErrSessionNotOwned)
	})
}
