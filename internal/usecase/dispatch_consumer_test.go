package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/acounsel/asfour/internal/apperrors"
)

func TestDetermineAckNakAction(t *testing.T) {
	baseDelay := 2 * time.Second
	maxDelay := time.Minute
	maxDeliver := 5

	testCases := []struct {
		name          string
		err           error
		numDelivered  uint64
		expected      AckNakAction
		expectedDelay time.Duration
	}{
		{
			name:     "success acks",
			err:      nil,
			expected: ActionAck,
		},
		{
			name:          "retryable first attempt naks with base delay",
			err:           apperrors.NewRetryable(errors.New("db down"), "load failed"),
			numDelivered:  1,
			expected:      ActionNakDelay,
			expectedDelay: baseDelay,
		},
		{
			name:          "retryable third attempt backs off",
			err:           apperrors.NewRetryable(errors.New("db down"), "load failed"),
			numDelivered:  3,
			expected:      ActionNakDelay,
			expectedDelay: 8 * time.Second,
		},
		{
			name:          "retryable fourth attempt keeps doubling",
			err:           apperrors.NewRetryable(errors.New("db down"), "load failed"),
			numDelivered:  4,
			expected:      ActionNakDelay,
			expectedDelay: 16 * time.Second,
		},
		{
			name:         "fatal error exhausts immediately",
			err:          apperrors.NewFatal(errors.New("message not found"), "load failed"),
			numDelivered: 1,
			expected:     ActionExhaust,
		},
		{
			name:         "max deliveries exhausts",
			err:          apperrors.NewRetryable(errors.New("db down"), "load failed"),
			numDelivered: 5,
			expected:     ActionExhaust,
		},
		{
			name:         "unwrapped error treated as non-retryable",
			err:          errors.New("boom"),
			numDelivered: 1,
			expected:     ActionExhaust,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			metadata := &nats.MsgMetadata{NumDelivered: tc.numDelivered}
			action, delay := determineAckNakAction(tc.err, metadata, maxDeliver, baseDelay, maxDelay)
			assert.Equal(t, tc.expected, action)
			if tc.expected == ActionNakDelay {
				assert.Equal(t, tc.expectedDelay, delay)
			}
		})
	}
}

func TestSubscribeSubject(t *testing.T) {
	assert.Equal(t, "v1.dispatch.>", subscribeSubject(nil))
	assert.Equal(t, "v1.dispatch.>", subscribeSubject([]string{"v1.dispatch.>"}))
}
