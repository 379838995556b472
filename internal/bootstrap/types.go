package bootstrap

// State is a position in the bootstrap sequence. A run only moves forward;
// a failed run stays at the last state it reached.
type State string

const (
	StateInit           State = "INIT"
	StateConfigRendered State = "CONFIG_RENDERED"
	StateDBReady        State = "DB_READY"
	StateStorageReady   State = "STORAGE_READY"
	StateBucketEnsured  State = "BUCKET_ENSURED"
	StateLakeAttached   State = "LAKE_ATTACHED"
	StateIdle           State = "IDLE"
)

// Status values used across Result and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
)

// Phase names, in execution order.
const (
	PhaseRenderConfig = "render-config"
	PhaseWaitPostgres = "wait-postgres"
	PhaseWaitStorage  = "wait-storage"
	PhaseEnsureBucket = "ensure-bucket"
	PhaseAttachLake   = "attach-lake"
)

// Result is the outcome of a bootstrap run. Phases are in execution order
// and stop at the first failure.
type Result struct {
	Status string        `json:"status"` // "ok", "error", "in-progress"
	State  State         `json:"state"`
	Phases []PhaseResult `json:"phases"`
}

// PhaseResult represents the outcome of a single bootstrap phase.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // "ok", "error"
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// ProbeResult is returned by deep health probes for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
