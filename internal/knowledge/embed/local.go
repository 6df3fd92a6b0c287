// internal/knowledge/embed/local.go
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// Local is a deterministic feature-hashing embedder. It needs no model and
// no network: each token (and adjacent-token bigram) hashes to a dimension
// and a sign, and the result is L2-normalized so cosine similarity behaves.
// Identical text always embeds to an identical vector, which is exactly the
// property the signature-keyed knowledge store depends on.
type Local struct {
	dim int
}

var _ schemas.Embedder = (*Local)(nil)

func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = 384
	}
	return &Local{dim: dim}
}

func (l *Local) Dimension() int { return l.dim }

func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dim)

	tokens := tokenize(text)
	for i, tok := range tokens {
		l.accumulate(vec, tok)
		if i+1 < len(tokens) {
			l.accumulate(vec, tok+" "+tokens[i+1])
		}
	}

	normalize(vec)
	return vec, nil
}

func (l *Local) accumulate(vec []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(l.dim))
	// One spare hash bit decides the sign, which keeps collisions from
	// only ever adding up.
	if sum&(1<<63) != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
