// Package caverna provides a Go client for the "Pergunte ao Capitão" API.
// It covers question upload, the synchronous test endpoint, the processing
// push stream (SSE or WebSocket) and the auxiliary health/cache endpoints.
package caverna

import (
	"fmt"
	"time"
)

// UploadStage is a locally produced stage of the synchronous upload path
type UploadStage string

const (
	StageUploading    UploadStage = "uploading"
	StageTranscribing UploadStage = "transcribing"
	StageGenerating   UploadStage = "generating"
	StageComplete     UploadStage = "complete"
)

// UploadProgress drives a progress bar when no server push session is used
type UploadProgress struct {
	Stage    UploadStage `json:"stage" yaml:"stage"`
	Progress int         `json:"progress" yaml:"progress"`
	Message  string      `json:"message" yaml:"message"`
}

// Phoneme is a single sound with the mouth shape used for lip-sync
type Phoneme struct {
	Phoneme    string `json:"phoneme" yaml:"phoneme"`
	MouthShape string `json:"mouth_shape" yaml:"mouth_shape"`
	DurationMS int    `json:"duration_ms" yaml:"duration_ms"`
}

// PhonemeAnalysis is the lip-sync data attached to a response
type PhonemeAnalysis struct {
	Phonemes                 []Phoneme `json:"phonemes" yaml:"phonemes"`
	TotalPhonemes            int       `json:"total_phonemes" yaml:"total_phonemes"`
	UniqueMouthShapes        []string  `json:"unique_mouth_shapes" yaml:"unique_mouth_shapes"`
	EstimatedDurationSeconds float64   `json:"estimated_duration_seconds" yaml:"estimated_duration_seconds"`
}

// FileInfo describes the media the question was extracted from
type FileInfo struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Size int64  `json:"size" yaml:"size"`
}

// QuestionResponse is the terminal answer to a submitted question
type QuestionResponse struct {
	Question        string          `json:"question" yaml:"question"`
	Response        string          `json:"response" yaml:"response"`
	PhonemeAnalysis PhonemeAnalysis `json:"phoneme_analysis" yaml:"phoneme_analysis"`
	TokensUsed      int             `json:"tokens_used" yaml:"tokens_used"`
	WordCount       int             `json:"word_count" yaml:"word_count"`
	Timestamp       string          `json:"timestamp" yaml:"timestamp"`

	// Cache metadata, only present when the service answered from its cache
	FromCache bool   `json:"from_cache,omitempty" yaml:"from_cache,omitempty"`
	CacheHits int    `json:"cache_hits,omitempty" yaml:"cache_hits,omitempty"`
	CachedAt  string `json:"cached_at,omitempty" yaml:"cached_at,omitempty"`

	// Generated media, when the service synthesised it
	AudioURL string    `json:"audio_url,omitempty" yaml:"audio_url,omitempty"`
	VideoURL string    `json:"video_url,omitempty" yaml:"video_url,omitempty"`
	FileInfo *FileInfo `json:"file_info,omitempty" yaml:"file_info,omitempty"`
}

// GeneratedAt parses Timestamp, returning the zero time when it is missing or invalid
func (r *QuestionResponse) GeneratedAt() time.Time {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CachedTime parses CachedAt, returning the zero time when it is missing or invalid
func (r *QuestionResponse) CachedTime() time.Time {
	t, err := time.Parse(time.RFC3339, r.CachedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StepStatus is the display status of a processing step
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "error"
)

// Step is one stage of server-side processing
type Step struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Progress  int    `json:"progress" yaml:"progress"`
	Completed bool   `json:"completed,omitempty" yaml:"completed,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Status resolves the step status; an error wins over completion,
// which wins over being the current step.
func (s Step) Status(currentStep string) StepStatus {
	switch {
	case s.Error != "":
		return StepFailed
	case s.Completed:
		return StepCompleted
	case s.ID == currentStep:
		return StepProcessing
	default:
		return StepPending
	}
}

// Session is the server-tracked asynchronous job for one question
type Session struct {
	ID                     string            `json:"id" yaml:"id"`
	CurrentStep            string            `json:"currentStep" yaml:"currentStep"`
	Progress               int               `json:"progress" yaml:"progress"`
	Message                string            `json:"message" yaml:"message"`
	EstimatedTimeRemaining *int              `json:"estimatedTimeRemaining" yaml:"estimatedTimeRemaining"`
	Steps                  []Step            `json:"steps" yaml:"steps"`
	Completed              bool              `json:"completed,omitempty" yaml:"completed,omitempty"`
	Error                  string            `json:"error,omitempty" yaml:"error,omitempty"`
	Result                 *QuestionResponse `json:"result,omitempty" yaml:"result,omitempty"`
}

// Terminal reports whether the session reached success or failure
func (s *Session) Terminal() bool {
	return s.Error != "" || (s.Completed && s.Result != nil)
}

// Validate checks the structural invariants of a snapshot. Out of range
// progress is tolerated here; displays clamp it.
func (s *Session) Validate() error {
	seen := make(map[string]struct{}, len(s.Steps))
	for _, step := range s.Steps {
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	if s.Result != nil && s.Error != "" {
		return fmt.Errorf("session carries both a result and an error")
	}
	return nil
}

// ClampedProgress returns Progress bounded to 0..100
func (s *Session) ClampedProgress() int {
	switch {
	case s.Progress < 0:
		return 0
	case s.Progress > 100:
		return 100
	}
	return s.Progress
}

// UploadResult is the acknowledgement of an asynchronous upload
type UploadResult struct {
	Success   bool   `json:"success" yaml:"success"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	Message   string `json:"message,omitempty" yaml:"message,omitempty"`
}

// UploadOutcome is either a synchronous answer or a session to track
type UploadOutcome struct {
	Result    *QuestionResponse
	SessionID string
}

// Async reports whether the outcome must be followed on the push stream
func (o *UploadOutcome) Async() bool {
	return o.SessionID != ""
}

// HealthStatus is the decoded /health body
type HealthStatus struct {
	Status    string         `json:"status" yaml:"status"`
	Timestamp string         `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Version   string         `json:"version,omitempty" yaml:"version,omitempty"`
	Raw       map[string]any `json:"-" yaml:"-"`
}

// Healthy reports whether the service declared itself usable
func (h *HealthStatus) Healthy() bool {
	switch h.Status {
	case "ok", "healthy", "up":
		return true
	}
	return false
}

// CacheStats is the decoded /cache-stats body
type CacheStats struct {
	TotalEntries int            `json:"total_entries" yaml:"total_entries"`
	TotalHits    int            `json:"total_hits" yaml:"total_hits"`
	HitRate      float64        `json:"hit_rate" yaml:"hit_rate"`
	Raw          map[string]any `json:"-" yaml:"-"`
}

// SimilarQuestion is one entry of the /similar-questions answer
type SimilarQuestion struct {
	Question   string  `json:"question" yaml:"question"`
	Response   string  `json:"response,omitempty" yaml:"response,omitempty"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
	CacheHits  int     `json:"cache_hits,omitempty" yaml:"cache_hits,omitempty"`
}

// APIError represents a non-2xx response from the service
type APIError struct {
	StatusCode int    `json:"status_code" yaml:"status_code"`
	Message    string `json:"message" yaml:"message"`
	Code       string `json:"code,omitempty" yaml:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d)", e.StatusCode)
}

// Temporary reports whether retrying could help (5xx)
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}
