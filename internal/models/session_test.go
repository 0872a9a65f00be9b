package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusTransitions(t *testing.T) {
	cases := []struct {
		from SessionStatus
		to   SessionStatus
		ok   bool
	}{
		{StatusScheduled, StatusWaiting, true},
		{StatusWaiting, StatusScheduled, true},
		{StatusScheduled, StatusActive, true},
		{StatusWaiting, StatusActive, true},
		{StatusActive, StatusCompleted, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusActive, StatusCancelled, true},

		{StatusScheduled, StatusCompleted, false},
		{StatusWaiting, StatusCompleted, false},
		{StatusActive, StatusScheduled, false},
		{StatusActive, StatusWaiting, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSessionStatusPredicates(t *testing.T) {
	assert.True(t, StatusScheduled.Joinable())
	assert.True(t, StatusWaiting.Joinable())
	assert.False(t, StatusActive.Joinable())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusActive.Terminal())
}
