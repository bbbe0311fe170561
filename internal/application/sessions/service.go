// Package sessions implements the analysis workflow use-cases: creating a
// session from the uploaded inputs and driving the staged pipeline (CV
// analysis, transcription, optional face analysis, technical and
// communication assessments, final report) against the AI gateway, degrading
// to fallback content when the provider is overloaded.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hirelens/interview-analyzer/internal/application"
	"github.com/hirelens/interview-analyzer/internal/domain/ai"
	"github.com/hirelens/interview-analyzer/internal/domain/files"
	"github.com/hirelens/interview-analyzer/internal/domain/session"
	"github.com/hirelens/interview-analyzer/internal/infra/ai/prompt"
)

// ErrInvalidInput marks caller mistakes at session creation (unsupported file
// type, empty job description).
var ErrInvalidInput = errors.New("invalid input")

// Limits carries the size caps in bytes. Upload caps reject at creation;
// processing caps route a stage to fallback without an AI call.
type Limits struct {
	UploadAudio  int64
	UploadVideo  int64
	UploadCV     int64
	ProcessAudio int64
	ProcessVideo int64
}

// Attempts is the per-stage AI attempt budget.
type Attempts map[session.Stage]int

// For returns the configured budget for a stage, defaulting to 2.
func (a Attempts) For(stage session.Stage) int {
	if v, ok := a[stage]; ok && v > 0 {
		return v
	}
	return 2
}

// Service implements the workflow use-cases. It owns no state of its own;
// all session mutation goes through the Store port. Safe for concurrent use.
type Service struct {
	Store    session.Store
	Files    files.Store
	AI       ai.Generator
	Fallback ai.Fallback
	Clock    application.Clock
	Logger   *zap.Logger
	Limits   Limits
	Attempts Attempts

	// flight coalesces concurrent duplicate invocations of the same
	// session/stage so they cannot race on result writes.
	flight singleflight.Group
}

// CreateCommand carries the uploaded inputs for a new session.
type CreateCommand struct {
	MediaFilename  string
	Media          io.Reader
	CVFilename     string
	CV             io.Reader
	JobDescription string
}

// StageOutcome is what a stage invocation reports back to the transport.
type StageOutcome struct {
	SessionID string         `json:"session_id"`
	Stage     session.Stage  `json:"stage"`
	Status    session.Status `json:"status"`
	Result    string         `json:"result"`
	Fallback  bool           `json:"fallback"`
	NextStage session.Stage  `json:"next_stage,omitempty"`
}

// Create validates and persists the uploads, then registers a new session in
// the initialized state. The media kind is fixed here from the filename.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*session.Session, error) {
	jd := strings.TrimSpace(cmd.JobDescription)
	if jd == "" {
		return nil, fmt.Errorf("job description is required: %w", ErrInvalidInput)
	}

	var kind session.MediaKind
	var mediaLimit int64
	switch {
	case files.IsVideoFilename(cmd.MediaFilename):
		kind = session.MediaVideo
		mediaLimit = s.Limits.UploadVideo
	case files.IsAudioFilename(cmd.MediaFilename):
		kind = session.MediaAudio
		mediaLimit = s.Limits.UploadAudio
	default:
		return nil, fmt.Errorf("unsupported media file %q: %w", cmd.MediaFilename, ErrInvalidInput)
	}

	switch files.MIMEType(cmd.CVFilename) {
	case "application/pdf", "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain":
	default:
		return nil, fmt.Errorf("unsupported cv file %q: %w", cmd.CVFilename, ErrInvalidInput)
	}

	mediaRef, mediaSize, err := s.Files.Save(ctx, cmd.MediaFilename, cmd.Media, mediaLimit)
	if err != nil {
		return nil, fmt.Errorf("store media upload: %w", err)
	}
	cvRef, cvSize, err := s.Files.Save(ctx, cmd.CVFilename, cmd.CV, s.Limits.UploadCV)
	if err != nil {
		return nil, fmt.Errorf("store cv upload: %w", err)
	}

	sess := &session.Session{
		ID:        uuid.New().String(),
		MediaKind: kind,
		Inputs: session.InputRefs{
			MediaRef:       mediaRef,
			MediaName:      cmd.MediaFilename,
			MediaSize:      mediaSize,
			CVRef:          cvRef,
			CVName:         cmd.CVFilename,
			CVSize:         cvSize,
			JobDescription: jd,
		},
		Status:    session.StatusInitialized,
		Results:   map[session.ResultKey]string{},
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Store.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.Logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("media_kind", string(kind)),
		zap.Int64("media_size", mediaSize),
	)
	return sess, nil
}

// Get returns the current session snapshot.
func (s *Service) Get(ctx context.Context, id string) (*session.Session, error) {
	return s.Store.Get(ctx, id)
}

// RunStage executes one stage of the pipeline. Concurrent duplicate calls for
// the same session/stage are coalesced onto a single execution.
func (s *Service) RunStage(ctx context.Context, id string, stage session.Stage) (StageOutcome, error) {
	return s.singleflightRun(ctx, id, stage, false)
}

// ForceFallback stores fallback content for the stage without consulting the
// AI gateway. Preconditions still apply.
func (s *Service) ForceFallback(ctx context.Context, id string, stage session.Stage) (StageOutcome, error) {
	return s.singleflightRun(ctx, id, stage, true)
}

// RetryStage rewinds the session past the stage and re-invokes it in-process.
// Re-running overwrites the stage's prior result; other results are untouched.
func (s *Service) RetryStage(ctx context.Context, id string, stage session.Stage) (StageOutcome, error) {
	err := s.Store.Update(ctx, id, func(ss *session.Session) error {
		if stage == session.StageFaceAnalysis && ss.MediaKind != session.MediaVideo {
			return &session.PreconditionError{Stage: stage, Reason: "face analysis requires a video recording"}
		}
		delete(ss.Results, stage.ResultKey())
		ss.Status = session.StatusFromResults(ss)
		ss.CompletedAt = nil
		return nil
	})
	if err != nil {
		return StageOutcome{}, err
	}
	return s.singleflightRun(ctx, id, stage, false)
}

func (s *Service) singleflightRun(ctx context.Context, id string, stage session.Stage, force bool) (StageOutcome, error) {
	key := fmt.Sprintf("%s/%s/force=%v", id, stage, force)
	// A started stage runs to completion: the caller disconnecting must not
	// cancel the in-flight provider call, and coalesced duplicates must not
	// inherit the first caller's cancellation.
	runCtx := context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.runStage(runCtx, id, stage, force)
	})
	if err != nil {
		return StageOutcome{}, err
	}
	return v.(StageOutcome), nil
}

func (s *Service) runStage(ctx context.Context, id string, stage session.Stage, force bool) (StageOutcome, error) {
	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return StageOutcome{}, err
	}

	// Precondition failures reject the call without touching stageStatus.
	if stage == session.StageFaceAnalysis && sess.MediaKind != session.MediaVideo {
		return StageOutcome{}, &session.PreconditionError{Stage: stage, Reason: "face analysis requires a video recording"}
	}
	if missing := stage.MissingPrerequisites(sess.Results); len(missing) > 0 {
		return StageOutcome{}, &session.PreconditionError{Stage: stage, Missing: missing}
	}

	if err := s.Store.Update(ctx, id, func(ss *session.Session) error {
		ss.Status = stage.Running()
		return nil
	}); err != nil {
		return StageOutcome{}, err
	}
	s.Logger.Info("stage started",
		zap.String("session_id", id),
		zap.String("stage", string(stage)),
		zap.Bool("force_fallback", force),
	)

	useFallback := force
	if !useFallback && stage.NeedsAttachment() && stage != session.StageCVAnalysis {
		// Media past the processing cap goes straight to fallback; no
		// attempt budget is spent on a payload the provider would refuse.
		if limit := s.processCap(sess.MediaKind); limit > 0 && sess.Inputs.MediaSize > limit {
			s.Logger.Warn("media exceeds processing cap, using fallback",
				zap.String("session_id", id),
				zap.String("stage", string(stage)),
				zap.Int64("media_size", sess.Inputs.MediaSize),
				zap.Int64("cap", limit),
			)
			useFallback = true
		}
	}

	var text string
	var fellBack bool
	if useFallback {
		text = s.fallbackFor(sess, stage)
		fellBack = true
	} else {
		text, fellBack, err = s.invokeAI(ctx, sess, stage)
		if err != nil {
			if uerr := s.Store.Update(ctx, id, func(ss *session.Session) error {
				ss.Status = session.StatusError
				return nil
			}); uerr != nil {
				s.Logger.Warn("could not record error status",
					zap.String("session_id", id),
					zap.String("stage", string(stage)),
					zap.Error(uerr),
				)
			}
			return StageOutcome{}, fmt.Errorf("stage %s: %w", stage, err)
		}
	}

	outcome := StageOutcome{SessionID: id, Stage: stage, Result: text, Fallback: fellBack}
	err = s.Store.Update(ctx, id, func(ss *session.Session) error {
		ss.Results[stage.ResultKey()] = text
		ss.Status = stage.Completed(ss.MediaKind, fellBack)
		if stage == session.StageFinalReport {
			now := s.Clock.Now()
			ss.CompletedAt = &now
		}
		outcome.Status = ss.Status
		if next, ok := session.NextStage(ss); ok {
			outcome.NextStage = next
		}
		return nil
	})
	if err != nil {
		return StageOutcome{}, err
	}

	s.Logger.Info("stage completed",
		zap.String("session_id", id),
		zap.String("stage", string(stage)),
		zap.String("status", string(outcome.Status)),
		zap.Bool("fallback", fellBack),
	)
	return outcome, nil
}

// invokeAI performs the gateway call for the stage. Overload is absorbed by
// substituting fallback content (second return true); every other failure
// propagates.
func (s *Service) invokeAI(ctx context.Context, sess *session.Session, stage session.Stage) (string, bool, error) {
	req := ai.Request{
		Prompt:      s.buildPrompt(sess, stage),
		MaxAttempts: s.Attempts.For(stage),
	}
	if stage.NeedsAttachment() {
		ref, name := attachmentInput(sess, stage)
		data, err := s.Files.Read(ctx, ref)
		if err != nil {
			return "", false, fmt.Errorf("read %s: %w", name, err)
		}
		req.Attachment = &ai.Attachment{MIMEType: files.MIMEType(name), Data: data}
	}

	out, err := s.AI.Generate(ctx, req)
	if err == nil {
		return out, false, nil
	}
	if errors.Is(err, ai.ErrOverloaded) {
		s.Logger.Warn("provider overloaded, degrading to fallback content",
			zap.String("session_id", sess.ID),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return s.fallbackFor(sess, stage), true, nil
	}
	return "", false, err
}

func (s *Service) buildPrompt(sess *session.Session, stage session.Stage) string {
	r := sess.Results
	jd := sess.Inputs.JobDescription
	switch stage {
	case session.StageCVAnalysis:
		return prompt.CVAnalysis(jd)
	case session.StageTranscription:
		return prompt.Transcription(string(sess.MediaKind))
	case session.StageFaceAnalysis:
		return prompt.FaceAnalysis()
	case session.StageTechnicalAnalysis:
		return prompt.TechnicalAnalysis(jd, r[session.ResultCVAnalysis], r[session.ResultTranscription])
	case session.StageCommunicationAnalysis:
		return prompt.CommunicationAnalysis(r[session.ResultTranscription])
	case session.StageFinalReport:
		return prompt.FinalReport(jd,
			r[session.ResultCVAnalysis],
			r[session.ResultTranscription],
			r[session.ResultTechnicalAnalysis],
			r[session.ResultCommunicationAnalysis],
			r[session.ResultFaceAnalysis],
		)
	}
	return ""
}

func (s *Service) fallbackFor(sess *session.Session, stage session.Stage) string {
	label := ""
	switch stage {
	case session.StageCVAnalysis:
		label = sess.Inputs.CVName
	case session.StageTranscription, session.StageFaceAnalysis:
		label = sess.Inputs.MediaName
	}
	return s.Fallback.Generate(string(stage), label, string(sess.MediaKind), sess.Inputs.JobDescription)
}

func (s *Service) processCap(kind session.MediaKind) int64 {
	if kind == session.MediaVideo {
		return s.Limits.ProcessVideo
	}
	return s.Limits.ProcessAudio
}

func attachmentInput(sess *session.Session, stage session.Stage) (ref, name string) {
	if stage == session.StageCVAnalysis {
		return sess.Inputs.CVRef, sess.Inputs.CVName
	}
	return sess.Inputs.MediaRef, sess.Inputs.MediaName
}
