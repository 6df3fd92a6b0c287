// internal/knowledge/confidence.go
package knowledge

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// decayLambda is the per-day exponential decay rate applied to stale
// memories at read time.
const decayLambda = 0.05

// signatureMaxLen bounds normalized signatures so embeddings stay focused
// on the head of the message.
const signatureMaxLen = 160

var (
	reDigits      = regexp.MustCompile(`\d+`)
	rePathSegment = regexp.MustCompile(`/[a-zA-Z0-9-_]+`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

// NormalizeSignature collapses volatile detail (ids, counters, path
// segments) out of a message so that recurrences of the same failure
// produce the same signature.
func NormalizeSignature(text string) string {
	if text == "" {
		return "unknown_signature"
	}
	s := strings.ToLower(text)
	s = reDigits.ReplaceAllString(s, "N")
	s = rePathSegment.ReplaceAllString(s, "/:param")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > signatureMaxLen {
		s = s[:signatureMaxLen]
	}
	return s
}

// ComputeConfidence derives confidence from the outcome counters: the
// success ratio, clamped to [0,1], with a neutral 0.5 prior when there is
// no history yet.
func ComputeConfidence(successCount, failureCount int) float64 {
	if successCount < 0 || failureCount < 0 {
		return 0.5
	}
	total := successCount + failureCount
	if total == 0 {
		return 0.5
	}
	return clamp01(float64(successCount) / float64(total))
}

// DecayConfidence applies exponential time decay based on how long ago the
// item was last used. At zero elapsed days the value is unchanged.
func DecayConfidence(confidence float64, lastUsed int64, now time.Time) float64 {
	if lastUsed <= 0 {
		return confidence
	}
	daysOld := now.Sub(time.UnixMilli(lastUsed)).Hours() / 24
	if daysOld <= 0 {
		return confidence
	}
	return confidence * math.Exp(-decayLambda*daysOld)
}

// ApplyBoost shifts confidence by the boost in the outcome's direction,
// clamped to [0,1].
func ApplyBoost(confidence float64, success bool, boost float64) float64 {
	if success {
		return clamp01(confidence + boost)
	}
	return clamp01(confidence - boost)
}

func clamp01(v float64) float64 {
	return math.Min(1.0, math.Max(0.0, v))
}
