package schemas

import "context"

// Driver is the abstract browser capability set the core consumes. The core
// never touches DOM APIs directly; a single implementation (chromedp) lives
// in internal/browser, and tests substitute fakes.
type Driver interface {
	// Navigate loads the target URL in the session's tab.
	Navigate(ctx context.Context, url string) error
	// Discover enumerates the interactive elements currently on the page,
	// together with the current route and document title.
	Discover(ctx context.Context) (route string, title string, elements []RawElement, err error)
	// Interact performs one interaction against the element whose recomputed
	// identifier equals actionID. Value semantics depend on the element kind
	// (fill text, option index for selects, ignored for clicks).
	Interact(ctx context.Context, actionID string, value string) error
	// NavigateBack performs browser history back navigation.
	NavigateBack(ctx context.Context) error
	// Screenshot captures the current viewport and returns an artifact ref.
	Screenshot(ctx context.Context, name string) (string, error)
	// WaitForStability blocks until the page settles (no pending network or
	// load activity, no visible loading indicator) or the bound expires.
	WaitForStability(ctx context.Context) error
	// Capture opens a scoped listener window that accumulates backend
	// responses and console errors until its Stop is called.
	Capture() CaptureSession
	// Close tears the session down.
	Close() error
}

// CaptureSession accumulates network and console traffic for one action
// window. Stop detaches the listeners and returns everything collected;
// it must be safe to call on every exit path.
type CaptureSession interface {
	Stop() (calls []NetworkCall, consoleErrors []string)
}

// VectorPoint is one stored point in the similarity backend.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload KnowledgeItem
	Score   float64
}

// VectorBackend abstracts the similarity store (Qdrant in production).
type VectorBackend interface {
	EnsureCollection(ctx context.Context, size int) error
	Upsert(ctx context.Context, point VectorPoint) error
	Search(ctx context.Context, vector []float32, filterType KnowledgeType, topK int) ([]VectorPoint, error)
	Retrieve(ctx context.Context, id string) (*VectorPoint, error)
}

// Embedder turns text into a fixed-dimension vector. Implementations are
// selected by configuration (local feature hashing vs. remote API).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// RunRepository persists run, step, and anomaly records. All writes are
// fire-and-forget from the agent's perspective: failure to persist never
// aborts a run.
type RunRepository interface {
	UpsertRunSummary(ctx context.Context, summary RunSummary) error
	InsertStep(ctx context.Context, runID string, step AgentStep) error
	InsertAnomalies(ctx context.Context, runID string, stepIndex int, anomalies []AnomalyReport) error
}
