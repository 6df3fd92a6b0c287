// internal/decision/engine_test.go
package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

func newTestEngine() *Engine {
	return NewEngine(zap.NewNop())
}

func runState(stateID string, actions []string, steps ...schemas.AgentStep) *schemas.RunState {
	return &schemas.RunState{
		RunID:     "run-1",
		TargetURL: "https://app.local",
		Current: schemas.UIState{
			StateID:          stateID,
			Route:            "/",
			AvailableActions: actions,
		},
		Steps: steps,
	}
}

func step(stateID, actionID string, anomalies ...schemas.AnomalyReport) schemas.AgentStep {
	return schemas.AgentStep{
		Action:    schemas.ActionContract{ActionID: actionID},
		StateID:   stateID,
		Anomalies: anomalies,
	}
}

func TestDecide_HardStopOnHighSeverity(t *testing.T) {
	e := newTestEngine()

	state := runState("s1", []string{"link_home"},
		step("s1", "button_save", schemas.AnomalyReport{
			Severity: schemas.SeverityHigh,
			Category: schemas.CategoryAPIError,
		}),
	)
	// A perfect fix in memory must not override the hard stop.
	memories := []schemas.KnowledgeItem{
		{ID: "m1", Type: schemas.KnowledgeFix, Solution: "button_retry", Confidence: 0.95},
	}

	d := e.Decide(state, memories)

	assert.Equal(t, schemas.ControlTerminate, d.Control)
	assert.Nil(t, d.NextAction)
}

func TestDecide_MediumSeverityDoesNotStop(t *testing.T) {
	e := newTestEngine()

	state := runState("s1", []string{"link_home"},
		step("s1", "button_save", schemas.AnomalyReport{
			Severity: schemas.SeverityMedium,
			Category: schemas.CategoryConsoleError,
		}),
	)

	d := e.Decide(state, nil)
	assert.Equal(t, schemas.ControlContinue, d.Control)
}

func TestDecide_FixReplay(t *testing.T) {
	e := newTestEngine()

	// Frontier actions exist, but the proven fix bypasses exploration.
	state := runState("s1", []string{"link_untried_a", "link_untried_b"})
	memories := []schemas.KnowledgeItem{
		{ID: "weak", Type: schemas.KnowledgeFix, Solution: "button_other", Confidence: 0.55},
		{ID: "strong", Type: schemas.KnowledgeFix, Solution: "button_retry", Confidence: 0.8,
			Metadata: map[string]string{"value": "42"}},
	}

	d := e.Decide(state, memories)

	require.NotNil(t, d.NextAction)
	assert.Equal(t, "button_retry", d.NextAction.ActionID)
	assert.Equal(t, "42", d.NextAction.Parameters["value"])
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, "strong", d.FromKnowledgeID)
}

func TestDecide_PatternGuidance(t *testing.T) {
	e := newTestEngine()
	state := runState("s1", []string{"link_home"})

	t.Run("with solution", func(t *testing.T) {
		memories := []schemas.KnowledgeItem{
			{ID: "p1", Type: schemas.KnowledgePattern, Content: "save then confirm", Solution: "button_confirm", Confidence: 0.7},
		}
		d := e.Decide(state, memories)
		require.NotNil(t, d.NextAction)
		assert.Equal(t, "button_confirm", d.NextAction.ActionID)
		assert.Equal(t, "p1", d.FromKnowledgeID)
	})

	t.Run("without solution falls back to investigate", func(t *testing.T) {
		memories := []schemas.KnowledgeItem{
			{ID: "p2", Type: schemas.KnowledgePattern, Content: "forms fail on submit", Confidence: 0.7},
		}
		d := e.Decide(state, memories)
		require.NotNil(t, d.NextAction)
		assert.Equal(t, "investigate", d.NextAction.ActionID)
	})

	t.Run("below threshold is ignored", func(t *testing.T) {
		memories := []schemas.KnowledgeItem{
			{ID: "p3", Type: schemas.KnowledgePattern, Solution: "button_x", Confidence: 0.5},
		}
		d := e.Decide(state, memories)
		require.NotNil(t, d.NextAction)
		assert.Equal(t, "link_home", d.NextAction.ActionID, "falls through to exploration")
	})
}

func TestDecide_FrontierSkipsTriedActions(t *testing.T) {
	e := newTestEngine()

	state := runState("s1", []string{"link_home", "link_about", "link_contact"},
		step("s1", "link_home"),
		step("s2", "link_about"), // tried in a different state, still frontier here
	)

	d := e.Decide(state, nil)

	require.NotNil(t, d.NextAction)
	assert.Equal(t, "link_about", d.NextAction.ActionID)
}

func TestDecide_ModalFirstOrderingIsRespected(t *testing.T) {
	e := newTestEngine()

	// available_actions is modal-first by construction; the engine takes
	// list order as the tie-break.
	state := runState("s1", []string{"button_close_dialog", "link_continue"})

	d := e.Decide(state, nil)
	require.NotNil(t, d.NextAction)
	assert.Equal(t, "button_close_dialog", d.NextAction.ActionID)
}

func TestDecide_ExplorationTerminationScenario(t *testing.T) {
	e := newTestEngine()
	actions := []string{"link_home", "link_about"}

	// Steps one and two take the frontier actions.
	state := runState("s1", actions)
	d := e.Decide(state, nil)
	require.NotNil(t, d.NextAction)
	assert.Equal(t, "link_home", d.NextAction.ActionID)

	state = runState("s1", actions, step("s1", "link_home"))
	d = e.Decide(state, nil)
	require.NotNil(t, d.NextAction)
	assert.Equal(t, "link_about", d.NextAction.ActionID)

	// Step three: nothing untried, no prior backtrack, so BROWSER_BACK.
	state = runState("s1", actions, step("s1", "link_home"), step("s1", "link_about"))
	d = e.Decide(state, nil)
	require.NotNil(t, d.NextAction)
	assert.Equal(t, schemas.ActionBrowserBack, d.NextAction.ActionID)

	// Step four: backtrack already attempted from this state, so terminate.
	state = runState("s1", actions,
		step("s1", "link_home"), step("s1", "link_about"), step("s1", schemas.ActionBrowserBack))
	d = e.Decide(state, nil)
	assert.Equal(t, schemas.ControlTerminate, d.Control)
	assert.Nil(t, d.NextAction)
}

func TestDecide_NoActionsDiscovered(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(runState("s1", nil), nil)
	assert.Equal(t, schemas.ControlTerminate, d.Control)
}

func TestDecide_ConfidenceSchedule(t *testing.T) {
	e := newTestEngine()
	actions := []string{"link_a", "link_b", "link_c"}

	d := e.Decide(runState("s1", actions), nil)
	assert.Equal(t, 1.0, d.Confidence)

	var steps []schemas.AgentStep
	for i := 0; i < 20; i++ {
		steps = append(steps, step("other", "link_x"))
	}
	d = e.Decide(runState("s1", actions, steps...), nil)
	assert.Equal(t, 0.6, d.Confidence, "confidence is floored at 0.6")
}

func TestDecide_InternalFaultTerminates(t *testing.T) {
	e := newTestEngine()

	// A nil run state makes the evaluation panic; the engine must convert
	// that into a clean terminate.
	d := e.Decide(nil, nil)
	assert.Equal(t, schemas.ControlTerminate, d.Control)
	assert.Nil(t, d.NextAction)
	assert.Contains(t, d.Reasoning, "internal decision fault")
}

func TestSynthesizeParameters(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		actionID string
		check    func(t *testing.T, params map[string]string)
	}{
		{"input_email_address", func(t *testing.T, p map[string]string) {
			assert.Contains(t, p["value"], "@")
		}},
		{"input_password", func(t *testing.T, p map[string]string) {
			assert.NotEmpty(t, p["value"])
		}},
		{"input_search", func(t *testing.T, p map[string]string) {
			assert.Equal(t, "test search query", p["value"])
		}},
		{"textarea_description", func(t *testing.T, p map[string]string) {
			assert.Equal(t, "test input", p["value"])
		}},
		{"select_country", func(t *testing.T, p map[string]string) {
			assert.Equal(t, "0", p["value"])
		}},
		{"button_save", func(t *testing.T, p map[string]string) {
			assert.Empty(t, p)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.actionID, func(t *testing.T) {
			tt.check(t, synthesizeParameters(tt.actionID, e.rng))
		})
	}
}
