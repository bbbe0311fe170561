package session

import "time"

// MediaKind enum, fixed at session creation.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ResultKey identifies a stage's output slot in Session.Results.
type ResultKey string

const (
	ResultCVAnalysis            ResultKey = "cvAnalysis"
	ResultTranscription         ResultKey = "transcription"
	ResultFaceAnalysis          ResultKey = "faceAnalysis"
	ResultTechnicalAnalysis     ResultKey = "technicalAnalysis"
	ResultCommunicationAnalysis ResultKey = "communicationAnalysis"
	ResultFinalReport           ResultKey = "finalReport"
)

// InputRefs holds opaque references to the uploaded files plus the job
// description text. Never mutated after creation.
type InputRefs struct {
	MediaRef       string `json:"media_ref"`
	MediaName      string `json:"media_name"`
	MediaSize      int64  `json:"media_size"`
	CVRef          string `json:"cv_ref"`
	CVName         string `json:"cv_name"`
	CVSize         int64  `json:"cv_size"`
	JobDescription string `json:"job_description"`
}

// Session is the aggregate root tracking one end-to-end candidate analysis run.
type Session struct {
	ID          string               `json:"id"`
	MediaKind   MediaKind            `json:"media_kind"`
	Inputs      InputRefs            `json:"inputs"`
	Status      Status               `json:"status"`
	Results     map[ResultKey]string `json:"results"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers never share the store's live record.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Results = make(map[ResultKey]string, len(s.Results))
	for k, v := range s.Results {
		cp.Results[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
