package render

// State is the lifecycle state the render service reports for a task.
type State string

const (
	StateCreated    State = "created"
	StateQueueing   State = "queueing"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// Terminal reports whether no further state change is expected.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// SubmitRequest is the body of a reference-to-video request. Zero-valued
// optional fields are left out of the JSON payload.
type SubmitRequest struct {
	Model             string   `json:"model"`
	Images            []string `json:"images"`
	Prompt            string   `json:"prompt"`
	Duration          int      `json:"duration,omitempty"`
	Seed              *int     `json:"seed,omitempty"`
	AspectRatio       string   `json:"aspect_ratio,omitempty"`
	Resolution        string   `json:"resolution,omitempty"`
	MovementAmplitude string   `json:"movement_amplitude,omitempty"`
	CallbackURL       string   `json:"callback_url,omitempty"`
}

// SubmitResponse is returned when a task is accepted.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	State  State  `json:"state"`
}

// Creation is one rendered output of a task.
type Creation struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	CoverURL string `json:"cover_url"`
}

// TaskStatus is the polled state of a task.
type TaskStatus struct {
	State     State      `json:"state"`
	ErrCode   string     `json:"err_code,omitempty"`
	Creations []Creation `json:"creations"`
}

// FirstURL returns the url of the first creation, or "" if there is none.
func (s *TaskStatus) FirstURL() string {
	if len(s.Creations) == 0 {
		return ""
	}
	return s.Creations[0].URL
}
