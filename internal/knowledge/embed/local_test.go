// internal/knowledge/embed/local_test.go
package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Deterministic(t *testing.T) {
	e := NewLocal(384)

	a, err := e.Embed(context.Background(), "timeout loading /users page")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "timeout loading /users page")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 384)
}

func TestLocal_UnitNorm(t *testing.T) {
	e := NewLocal(384)

	vec, err := e.Embed(context.Background(), "some failing request with status 500")
	require.NoError(t, err)

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-5)
}

func TestLocal_DistinctTextsDiffer(t *testing.T) {
	e := NewLocal(384)

	a, _ := e.Embed(context.Background(), "console error on checkout")
	b, _ := e.Embed(context.Background(), "navigation timeout on login")
	assert.NotEqual(t, a, b)
}

func TestLocal_EmptyTextIsZeroVector(t *testing.T) {
	e := NewLocal(16)

	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocal_DefaultDimension(t *testing.T) {
	assert.Equal(t, 384, NewLocal(0).Dimension())
	assert.Equal(t, 128, NewLocal(128).Dimension())
}
