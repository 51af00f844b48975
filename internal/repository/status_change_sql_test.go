package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/homestay-reservation/internal/model"
)

func TestStatusChangeSQL(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("confirm guards open deadline", func(t *testing.T) {
		q, args := statusChangeSQL(model.StatusChange{
			ReservationID: "r1", From: model.StatusReserved, To: model.StatusConfirmed,
			Deadline: model.DeadlineOpen, At: at,
		})
		assert.Equal(t, "UPDATE reservations SET status = ?, updated_at = ?, payment_timeout_at = NULL "+
			"WHERE id = ? AND status = ? AND is_deleted = 0 AND (payment_timeout_at IS NULL OR payment_timeout_at > ?)", q)
		assert.Equal(t, []interface{}{"CONFIRMED", at, "r1", "RESERVED", at}, args)
	})

	t.Run("expire requires elapsed deadline", func(t *testing.T) {
		q, args := statusChangeSQL(model.StatusChange{
			ReservationID: "r1", From: model.StatusReserved, To: model.StatusAborted,
			Deadline: model.DeadlineElapsed, At: at,
		})
		assert.Contains(t, q, "payment_timeout_at IS NOT NULL AND payment_timeout_at <= ?")
		assert.NotContains(t, q, "is_deleted = 1")
		assert.Len(t, args, 5)
	})

	t.Run("cancel soft deletes", func(t *testing.T) {
		q, args := statusChangeSQL(model.StatusChange{
			ReservationID: "r1", From: model.StatusReserved, To: model.StatusAborted,
			Deadline: model.DeadlineOpen, SoftDelete: true, At: at,
		})
		assert.Contains(t, q, "is_deleted = 1, deleted_at = ?")
		assert.Equal(t, []interface{}{"ABORTED", at, at, "r1", "RESERVED", at}, args)
	})

	t.Run("complete ignores deadline", func(t *testing.T) {
		q, args := statusChangeSQL(model.StatusChange{
			ReservationID: "r1", From: model.StatusConfirmed, To: model.StatusCompleted, At: at,
		})
		assert.NotContains(t, q, "payment_timeout_at >")
		assert.NotContains(t, q, "payment_timeout_at <=")
		assert.Equal(t, []interface{}{"COMPLETED", at, "r1", "CONFIRMED"}, args)
	})
}
