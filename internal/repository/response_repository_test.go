package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// responseRow plays back one responses row in responseColumns order. Like
// pgx, it refuses to put a NULL into a bare *float64: the destination for a
// nullable column has to be a pointer itself.
type responseRow struct {
	id, examID, sessionID, userID uuid.UUID
	email                         string
	total                         *float64
	createdAt, updatedAt          time.Time
}

func (r responseRow) Scan(dest ...any) error {
	if len(dest) != 8 {
		return fmt.Errorf("expected 8 scan targets, got %d", len(dest))
	}
	*(dest[0].(*uuid.UUID)) = r.id
	*(dest[1].(*uuid.UUID)) = r.examID
	*(dest[2].(*uuid.UUID)) = r.sessionID
	*(dest[3].(*uuid.UUID)) = r.userID
	*(dest[4].(*string)) = r.email
	switch tp := dest[5].(type) {
	case **float64:
		*tp = r.total
	case *float64:
		if r.total == nil {
			return fmt.Errorf("cannot scan NULL into %T", dest[5])
		}
		*tp = *r.total
	default:
		return fmt.Errorf("unsupported total_score target %T", dest[5])
	}
	*(dest[6].(*time.Time)) = r.createdAt
	*(dest[7].(*time.Time)) = r.updatedAt
	return nil
}

func TestScanResponse(t *testing.T) {
	base := responseRow{
		id:        uuid.New(),
		examID:    uuid.New(),
		sessionID: uuid.New(),
		userID:    uuid.New(),
		email:     "student@school.test",
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}

	t.Run("ungraded response has a NULL total and reads as zero", func(t *testing.T) {
		resp, err := scanResponse(base)
		require.NoError(t, err)
		assert.Equal(t, base.id, resp.ID)
		assert.Equal(t, base.email, resp.StudentEmail)
		assert.Zero(t, resp.TotalScore)
	})

	t.Run("graded response carries its total through", func(t *testing.T) {
		row := base
		total := 7.5
		row.total = &total

		resp, err := scanResponse(row)
		require.NoError(t, err)
		assert.Equal(t, 7.5, resp.TotalScore)
	})
}
