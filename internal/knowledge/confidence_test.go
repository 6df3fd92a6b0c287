// internal/knowledge/confidence_test.go
package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSignature(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty input",
			input: "",
			want:  "unknown_signature",
		},
		{
			name:  "digits collapse",
			input: "Request failed with status 502 after 3 retries",
			want:  "request failed with status N after N retries",
		},
		{
			name:  "path segments become params",
			input: "GET /users/42/orders returned 404",
			want:  "get /:param/:param/:param returned N",
		},
		{
			name:  "whitespace collapses",
			input: "error:   something \n broke",
			want:  "error: something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSignature(tt.input))
		})
	}
}

func TestNormalizeSignature_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "verylongtoken "
	}
	assert.LessOrEqual(t, len(NormalizeSignature(long)), signatureMaxLen)
}

func TestNormalizeSignature_Stability(t *testing.T) {
	// Two occurrences of the same failure with different ids must collide.
	a := NormalizeSignature("POST /items/17 failed with 500")
	b := NormalizeSignature("POST /items/9241 failed with 500")
	assert.Equal(t, a, b)
}

func TestComputeConfidence(t *testing.T) {
	assert.Equal(t, 0.5, ComputeConfidence(0, 0))
	assert.Equal(t, 1.0, ComputeConfidence(4, 0))
	assert.Equal(t, 0.0, ComputeConfidence(0, 3))
	assert.InDelta(t, 0.75, ComputeConfidence(3, 1), 1e-9)
	assert.Equal(t, 0.5, ComputeConfidence(-1, 5))
}

func TestDecayConfidence(t *testing.T) {
	now := time.Now()

	t.Run("no decay at zero days", func(t *testing.T) {
		got := DecayConfidence(0.8, now.UnixMilli(), now)
		assert.InDelta(t, 0.8, got, 1e-9)
	})

	t.Run("monotonically non-increasing with age", func(t *testing.T) {
		prev := 0.8
		for days := 1; days <= 60; days += 7 {
			lastUsed := now.AddDate(0, 0, -days).UnixMilli()
			got := DecayConfidence(0.8, lastUsed, now)
			assert.LessOrEqual(t, got, prev, "days=%d", days)
			assert.GreaterOrEqual(t, got, 0.0)
			prev = got
		}
	})

	t.Run("never used means no decay", func(t *testing.T) {
		assert.Equal(t, 0.7, DecayConfidence(0.7, 0, now))
	})
}

func TestApplyBoost_Bounds(t *testing.T) {
	conf := 0.5
	for i := 0; i < 20; i++ {
		conf = ApplyBoost(conf, true, 0.1)
		assert.LessOrEqual(t, conf, 1.0)
	}
	assert.Equal(t, 1.0, conf)

	for i := 0; i < 40; i++ {
		conf = ApplyBoost(conf, false, 0.1)
		assert.GreaterOrEqual(t, conf, 0.0)
	}
	assert.Equal(t, 0.0, conf)
}
