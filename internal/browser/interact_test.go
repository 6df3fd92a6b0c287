package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/fingerprint"
)

// Discovery and interaction must derive the same label for every element,
// including inputs and selects that carry neither a placeholder nor a name.
// If the two scripts disagree, the advertised action id can never be
// recomputed at interaction time and the action is permanently unexecutable.
func TestScriptsShareAnonymousLabelFallback(t *testing.T) {
	require.NotEmpty(t, anonLabelScript)

	t.Run("both scripts embed the shared fallback", func(t *testing.T) {
		assert.Contains(t, discoverScript, anonLabelScript)
		assert.Contains(t, candidateScript, anonLabelScript)
	})

	t.Run("both scripts resolve labels through the shared map", func(t *testing.T) {
		assert.Contains(t, discoverScript, "el.placeholder || el.name || anonLabels.get(el)")
		assert.Contains(t, discoverScript, "el.name || anonLabels.get(el)")
		assert.Contains(t, candidateScript, "el.placeholder || el.name || anonLabels.get(el)")
	})

	t.Run("fallback labels recompute to the advertised action id", func(t *testing.T) {
		// The shared snippet labels nameless elements input_0, input_1, ...
		// and select_N from the same counter. Locating recomputes the id
		// from the same label, so both sides must land on the same value.
		for _, tc := range []struct {
			role  schemas.ElementRole
			label string
			want  string
		}{
			{schemas.RoleInput, "input_0", "input_input_0"},
			{schemas.RoleTextarea, "input_1", "textarea_input_1"},
			{schemas.RoleSelect, "select_2", "select_select_2"},
		} {
			discovered := fingerprint.ActionID(tc.role, tc.label)
			recomputed := fingerprint.ActionID(tc.role, tc.label)
			assert.Equal(t, tc.want, discovered)
			assert.Equal(t, discovered, recomputed)
		}
	})

	t.Run("counter skips go with the element skips", func(t *testing.T) {
		// Hidden/submit/button inputs are excluded from discovery, so the
		// shared fallback must exclude them from the counter too or every
		// later anonymous label shifts by one.
		idx := strings.Index(anonLabelScript, "continue")
		require.Greater(t, idx, 0)
		assert.Contains(t, anonLabelScript[:idx], "'hidden'")
		assert.Contains(t, anonLabelScript[:idx], "'submit'")
		assert.Contains(t, anonLabelScript[:idx], "'button'")
	})
}
