package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		from, to Status
		want     TransitionKind
	}{
		{StatusInProgress, StatusShipped, TransitionForward},
		{StatusShipped, StatusDelivered, TransitionForward},
		{StatusDelivered, StatusRefunded, TransitionForward},
		{StatusInProgress, StatusCancelled, TransitionForward},
		{StatusPending, StatusShipped, TransitionForward},
		{StatusDelivered, StatusInProgress, TransitionBackward},
		{StatusRefunded, StatusShipped, TransitionBackward},
		{StatusCancelled, StatusRefunded, TransitionLateral},
		{StatusPending, StatusInProgress, TransitionLateral},
		{StatusShipped, StatusShipped, TransitionUnchanged},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.from, tc.to).Kind)
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("Livré")
	assert.NoError(t, err)
	assert.Equal(t, StatusDelivered, s)

	_, err = ParseStatus("livre")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	// The legacy initial status is readable but not settable.
	_, err = ParseStatus(string(StatusPending))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestTrackingStep(t *testing.T) {
	assert.Equal(t, 1, TrackingStep(StatusInProgress))
	assert.Equal(t, 1, TrackingStep(StatusPending))
	assert.Equal(t, 2, TrackingStep(StatusShipped))
	assert.Equal(t, 3, TrackingStep(StatusDelivered))
	assert.Equal(t, 0, TrackingStep(StatusCancelled))
}

func TestTransition_NotifyOnlyOnChange(t *testing.T) {
	assert.False(t, Classify(StatusShipped, StatusShipped).Notify())
	assert.True(t, Classify(StatusShipped, StatusDelivered).Notify())
	assert.False(t, Classify(StatusDelivered, StatusRefunded).Notify())
}
