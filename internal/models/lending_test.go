package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduleStatus_CanTransitionTo(t *testing.T) {
	statuses := []ScheduleStatus{SchedulePending, ScheduleDue, ScheduleOverdue, SchedulePaid}
	allowed := map[ScheduleStatus][]ScheduleStatus{
		SchedulePending: {ScheduleDue},
		ScheduleDue:     {ScheduleOverdue, SchedulePaid},
		ScheduleOverdue: {SchedulePaid},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				assert.Equal(t, want, from.CanTransitionTo(to))
			})
		}
	}

	t.Run("backward moves are rejected", func(t *testing.T) {
		assert.False(t, ScheduleOverdue.CanTransitionTo(ScheduleDue))
		assert.False(t, ScheduleDue.CanTransitionTo(SchedulePending))
		assert.False(t, SchedulePaid.CanTransitionTo(ScheduleOverdue))
	})

	t.Run("pending cannot skip to paid", func(t *testing.T) {
		assert.False(t, SchedulePending.CanTransitionTo(SchedulePaid))
	})

	t.Run("unknown status", func(t *testing.T) {
		assert.False(t, ScheduleStatus("CANCELLED").CanTransitionTo(ScheduleDue))
		assert.False(t, SchedulePending.CanTransitionTo(ScheduleStatus("")))
	})
}
