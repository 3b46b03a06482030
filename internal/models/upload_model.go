package models

// UploadResult is the outcome of one call into the upload engine.
type UploadResult struct {
	VideoID       string `json:"video_id,omitempty"`
	Success       bool   `json:"success"`
	HDReady       bool   `json:"hd_ready"`
	Error         string `json:"error,omitempty"`
	Retries       int    `json:"retries"`
	TestOnly      bool   `json:"test_only"`
	QuotaExceeded bool   `json:"quota_exceeded"`
	FileSize      int64  `json:"file_size,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
}

// RunState is shared by every profile processed in one invocation.
type RunState struct {
	Uploads       int
	QuotaExceeded bool
}

type Decision string

const (
	DecisionSkip    Decision = "skip"
	DecisionResume  Decision = "resume"
	DecisionProcess Decision = "process"
)

type GuardResult struct {
	Decision Decision
	Reason   string
	Existing *PostMetadata
}
