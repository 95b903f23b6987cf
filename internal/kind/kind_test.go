package kind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "kind error", err: New(MuxFailed, "Show", 1, "mux", errors.New("boom")), want: MuxFailed},
		{name: "plain error", err: errors.New("boom"), want: Unknown},
		{name: "nil error", err: nil, want: Unknown},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Of(tc.err))
		})
	}
}

func TestIsCancelled(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCancelled(New(Cancelled, "Show", 1, "segment", errors.New("ctx done"))))
	assert.False(t, IsCancelled(New(SegmentFailed, "Show", 1, "segment", errors.New("nope"))))
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	wrapped := Wrap(BadKey, "Show", 2, "segment", cause, "fetch key")

	assert.ErrorIs(t, wrapped, cause)
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := New(PartialFailure, "Show", 4, "segment", errors.New("3/10 failed"))
	assert.Contains(t, err.Error(), "partial_failure")
	assert.Contains(t, err.Error(), "Show")
	assert.Contains(t, err.Error(), "ep 4")
}
