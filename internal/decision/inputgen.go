// internal/decision/inputgen.go
package decision

import (
	"math/rand"
	"strconv"
	"strings"
)

var (
	emailPool    = []string{"test@example.com", "user@domain.org", "admin@site.net"}
	namePool     = []string{"John Doe", "Jane Smith", "Test User"}
	phonePool    = []string{"555-0123", "123-456-7890", "+1-555-0199"}
	passwordPool = []string{"TestPass123!", "SecureP@ss1", "Demo123$"}
)

// synthesizeValue picks a plausible input value for a field by matching its
// identifier tokens against a small set of field-type heuristics. Pools are
// sampled uniformly; unmatched fields fall back to a generic placeholder.
func synthesizeValue(actionID string, rng *rand.Rand) string {
	id := strings.ToLower(actionID)

	switch {
	case strings.Contains(id, "email") || strings.Contains(id, "mail"):
		return emailPool[rng.Intn(len(emailPool))]
	case strings.Contains(id, "password") || strings.Contains(id, "pass"):
		return passwordPool[rng.Intn(len(passwordPool))]
	case strings.Contains(id, "phone") || strings.Contains(id, "tel"):
		return phonePool[rng.Intn(len(phonePool))]
	case strings.Contains(id, "name") || strings.Contains(id, "user"):
		return namePool[rng.Intn(len(namePool))]
	case strings.Contains(id, "search") || strings.Contains(id, "query"):
		return "test search query"
	case strings.Contains(id, "number") || strings.Contains(id, "age") || strings.Contains(id, "count"):
		return strconv.Itoa(rng.Intn(100) + 1)
	default:
		return "test input"
	}
}

// synthesizeParameters builds the parameter map for a frontier action based
// on its element kind.
func synthesizeParameters(actionID string, rng *rand.Rand) map[string]string {
	id := strings.ToLower(actionID)

	switch {
	case strings.HasPrefix(id, "input_") || strings.HasPrefix(id, "textarea_"):
		return map[string]string{"value": synthesizeValue(actionID, rng)}
	case strings.HasPrefix(id, "select_"):
		return map[string]string{"value": "0"}
	default:
		return map[string]string{}
	}
}
