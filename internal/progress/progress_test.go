package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		stage    int
		expected int
	}{
		{0, 0},
		{1, 11},
		{4, 44},
		{8, 88},
		{9, 100},
		{12, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, State{Stage: tt.stage}.Percent())
	}
}
