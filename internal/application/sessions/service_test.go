package sessions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hirelens/interview-analyzer/internal/domain/ai"
	"github.com/hirelens/interview-analyzer/internal/domain/files"
	"github.com/hirelens/interview-analyzer/internal/domain/session"
	"github.com/hirelens/interview-analyzer/internal/infra/ai/fallback"
	"github.com/hirelens/interview-analyzer/internal/infra/store/memory"
)

const mb = int64(1 << 20)

type fakeAI struct {
	mu       sync.Mutex
	calls    int
	requests []ai.Request
	respond  func(req ai.Request) (string, error)
}

func (f *fakeAI) Generate(_ context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(req)
	}
	return "generated output", nil
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memFiles is an in-memory files.Store; refs are the original filenames.
type memFiles struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemFiles() *memFiles { return &memFiles{m: map[string][]byte{}} }

func (s *memFiles) Save(_ context.Context, filename string, r io.Reader, limit int64) (string, int64, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(r)
	if err != nil {
		return "", 0, err
	}
	if limit > 0 && n > limit {
		return "", 0, fmt.Errorf("%s too big: %w", filename, files.ErrTooLarge)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[filename] = buf.Bytes()
	return filename, n, nil
}

func (s *memFiles) Read(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.m[ref]
	if !ok {
		return nil, files.ErrNotFound
	}
	return data, nil
}

func (s *memFiles) Stat(_ context.Context, ref string) (int64, error) {
	data, err := s.Read(context.Background(), ref)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeAI) {
	t.Helper()
	store := memory.New(0, 0, zap.NewNop())
	t.Cleanup(store.Close)

	gen := &fakeAI{}
	svc := &Service{
		Store:    store,
		Files:    newMemFiles(),
		AI:       gen,
		Fallback: fallback.New(),
		Clock:    fixedClock{t: testNow},
		Logger:   zap.NewNop(),
		Limits: Limits{
			UploadAudio:  25 * mb,
			UploadVideo:  10 * mb,
			UploadCV:     10 * mb,
			ProcessAudio: 20 * mb,
			ProcessVideo: 8 * mb,
		},
		Attempts: Attempts{
			session.StageCVAnalysis:    2,
			session.StageTranscription: 3,
		},
	}
	return svc, gen
}

func createTestSession(t *testing.T, svc *Service, mediaName string, mediaSize int64) *session.Session {
	t.Helper()
	sess, err := svc.Create(context.Background(), CreateCommand{
		MediaFilename:  mediaName,
		Media:          strings.NewReader(strings.Repeat("m", int(mediaSize))),
		CVFilename:     "resume.pdf",
		CV:             strings.NewReader(strings.Repeat("c", int(mb))),
		JobDescription: "Senior Backend Engineer",
	})
	require.NoError(t, err)
	return sess
}

func TestFullVideoPipeline(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 5*mb)
	require.Equal(t, session.MediaVideo, sess.MediaKind)
	require.Equal(t, session.StatusInitialized, sess.Status)

	out, err := svc.RunStage(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCVAnalyzed, out.Status)
	assert.Equal(t, session.StageTranscription, out.NextStage)

	out, err = svc.RunStage(ctx, sess.ID, session.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, session.StatusVideoTranscribed, out.Status)
	assert.Equal(t, session.StageFaceAnalysis, out.NextStage)

	out, err = svc.RunStage(ctx, sess.ID, session.StageFaceAnalysis)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFaceAnalyzed, out.Status)

	out, err = svc.RunStage(ctx, sess.ID, session.StageTechnicalAnalysis)
	require.NoError(t, err)
	assert.Equal(t, session.StatusTechnicalAnalyzed, out.Status)

	out, err = svc.RunStage(ctx, sess.ID, session.StageCommunicationAnalysis)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCommunicationAnalyzed, out.Status)

	out, err = svc.RunStage(ctx, sess.ID, session.StageFinalReport)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, out.Status)
	assert.Empty(t, out.NextStage)

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	for _, key := range []session.ResultKey{
		session.ResultCVAnalysis, session.ResultTranscription, session.ResultFaceAnalysis,
		session.ResultTechnicalAnalysis, session.ResultCommunicationAnalysis, session.ResultFinalReport,
	} {
		assert.NotEmpty(t, got.Results[key], key)
	}
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, testNow, *got.CompletedAt)
	assert.Equal(t, 6, gen.callCount())
}

func TestAudioPipelineSkipsFaceAnalysis(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp3", 5*mb)
	require.Equal(t, session.MediaAudio, sess.MediaKind)

	out, err := svc.RunStage(ctx, sess.ID, session.StageTranscription)
	require.NoError(t, err)
	assert.Equal(t, session.StatusAudioTranscribed, out.Status)
	// next hint never points at face analysis for audio
	assert.Equal(t, session.StageCVAnalysis, out.NextStage)
}

func TestFaceAnalysisRejectedForAudio(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.wav", 2*mb)

	_, err := svc.RunStage(ctx, sess.ID, session.StageFaceAnalysis)
	assert.ErrorIs(t, err, session.ErrPrecondition)
	assert.Equal(t, 0, gen.callCount())

	got, _ := svc.Get(ctx, sess.ID)
	assert.Equal(t, session.StatusInitialized, got.Status, "status untouched on precondition failure")
	assert.NotContains(t, got.Results, session.ResultFaceAnalysis)
}

func TestTechnicalAnalysisPreconditions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 5*mb)

	_, err := svc.RunStage(ctx, sess.ID, session.StageTechnicalAnalysis)
	require.ErrorIs(t, err, session.ErrPrecondition)

	var pre *session.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, []session.ResultKey{session.ResultTranscription, session.ResultCVAnalysis}, pre.Missing)

	got, _ := svc.Get(ctx, sess.ID)
	assert.Equal(t, session.StatusInitialized, got.Status)
}

func TestFinalReportIdentifiesExactlyMissingAnalyses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 5*mb)

	_, err := svc.RunStage(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	_, err = svc.RunStage(ctx, sess.ID, session.StageTranscription)
	require.NoError(t, err)

	_, err = svc.RunStage(ctx, sess.ID, session.StageFinalReport)
	var pre *session.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, []session.ResultKey{session.ResultTechnicalAnalysis, session.ResultCommunicationAnalysis}, pre.Missing)
	assert.Contains(t, pre.Error(), "technicalAnalysis")
	assert.Contains(t, pre.Error(), "communicationAnalysis")
}

func TestOverloadedTranscriptionFallsBackAndPipelineContinues(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 5*mb)

	gen.respond = func(req ai.Request) (string, error) {
		if strings.Contains(req.Prompt, "Transcribe the attached") {
			return "", fmt.Errorf("503 UNAVAILABLE: %w", ai.ErrOverloaded)
		}
		return "generated output", nil
	}

	out, err := svc.RunStage(ctx, sess.ID, session.StageTranscription)
	require.NoError(t, err, "overload never surfaces as a hard failure")
	assert.True(t, out.Fallback)
	assert.Equal(t, session.StatusVideoTranscribedFallback, out.Status)
	assert.Contains(t, out.Result, "placeholder")

	// fallback satisfies the transcription prerequisite downstream
	_, err = svc.RunStage(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	tech, err := svc.RunStage(ctx, sess.ID, session.StageTechnicalAnalysis)
	require.NoError(t, err)
	assert.Equal(t, session.StatusTechnicalAnalyzed, tech.Status)
}

func TestOversizedVideoForcesFallbackWithoutGatewayCall(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	// 9 MB: inside the 10 MB upload cap, past the 8 MB processing cap
	sess := createTestSession(t, svc, "interview.mp4", 9*mb)

	out, err := svc.RunStage(ctx, sess.ID, session.StageTranscription)
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, session.StatusVideoTranscribedFallback, out.Status)
	assert.Equal(t, 0, gen.callCount())
}

func TestUploadCapRejectsAtCreation(t *testing.T) {
	svc, gen := newTestService(t)

	_, err := svc.Create(context.Background(), CreateCommand{
		MediaFilename:  "huge.mp4",
		Media:          strings.NewReader(strings.Repeat("m", int(11*mb))),
		CVFilename:     "resume.pdf",
		CV:             strings.NewReader("cv"),
		JobDescription: "Senior Backend Engineer",
	})
	assert.ErrorIs(t, err, files.ErrTooLarge)
	assert.Equal(t, 0, gen.callCount())
}

func TestCreateInputValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []CreateCommand{
		{MediaFilename: "slides.pdf", Media: strings.NewReader("x"), CVFilename: "resume.pdf", CV: strings.NewReader("x"), JobDescription: "jd"},
		{MediaFilename: "a.mp4", Media: strings.NewReader("x"), CVFilename: "resume.exe", CV: strings.NewReader("x"), JobDescription: "jd"},
		{MediaFilename: "a.mp4", Media: strings.NewReader("x"), CVFilename: "resume.pdf", CV: strings.NewReader("x"), JobDescription: "   "},
	}
	for i, cmd := range cases {
		_, err := svc.Create(ctx, cmd)
		assert.ErrorIs(t, err, ErrInvalidInput, "case %d", i)
	}
}

func TestRetryOverwritesOnlyThatStage(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 5*mb)

	gen.respond = func(ai.Request) (string, error) { return "first cv take", nil }
	_, err := svc.RunStage(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	gen.respond = func(ai.Request) (string, error) { return "transcript", nil }
	_, err = svc.RunStage(ctx, sess.ID, session.StageTranscription)
	require.NoError(t, err)

	gen.respond = func(ai.Request) (string, error) { return "second cv take", nil }
	out, err := svc.RetryStage(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "second cv take", out.Result)
	assert.Equal(t, session.StatusCVAnalyzed, out.Status)

	got, _ := svc.Get(ctx, sess.ID)
	assert.Equal(t, "second cv take", got.Results[session.ResultCVAnalysis])
	assert.Equal(t, "transcript", got.Results[session.ResultTranscription], "other results untouched")
}

func TestRetryAfterErrorRecovers(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 5*mb)

	gen.respond = func(ai.Request) (string, error) {
		return "", fmt.Errorf("throttled: %w", ai.ErrRateLimited)
	}
	_, err := svc.RunStage(ctx, sess.ID, session.StageCVAnalysis)
	require.ErrorIs(t, err, ai.ErrRateLimited)

	got, _ := svc.Get(ctx, sess.ID)
	assert.Equal(t, session.StatusError, got.Status)
	assert.NotContains(t, got.Results, session.ResultCVAnalysis, "no result written on failure")

	gen.respond = nil
	out, err := svc.RetryStage(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCVAnalyzed, out.Status)
}

func TestForceFallbackBypassesGateway(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 5*mb)

	out, err := svc.ForceFallback(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, session.StatusCVAnalyzedFallback, out.Status)
	assert.Contains(t, out.Result, "resume.pdf")
	assert.Equal(t, 0, gen.callCount())
}

func TestStageAttachmentsAndBudgets(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 2*mb)

	_, err := svc.RunStage(ctx, sess.ID, session.StageCVAnalysis)
	require.NoError(t, err)
	_, err = svc.RunStage(ctx, sess.ID, session.StageTranscription)
	require.NoError(t, err)
	_, err = svc.RunStage(ctx, sess.ID, session.StageCommunicationAnalysis)
	require.NoError(t, err)

	require.Len(t, gen.requests, 3)
	cv, tr, comm := gen.requests[0], gen.requests[1], gen.requests[2]

	require.NotNil(t, cv.Attachment)
	assert.Equal(t, "application/pdf", cv.Attachment.MIMEType)
	assert.Equal(t, 2, cv.MaxAttempts)

	require.NotNil(t, tr.Attachment)
	assert.Equal(t, "video/mp4", tr.Attachment.MIMEType)
	assert.Equal(t, 3, tr.MaxAttempts)

	assert.Nil(t, comm.Attachment, "text-only stages send no attachment")
	assert.Equal(t, 2, comm.MaxAttempts, "default budget")
	assert.Contains(t, comm.Prompt, "generated output", "prompt carries the transcript")
}

func TestConcurrentDuplicateStageRunsCoalesce(t *testing.T) {
	svc, gen := newTestService(t)
	ctx := context.Background()
	sess := createTestSession(t, svc, "interview.mp4", 2*mb)

	gen.respond = func(ai.Request) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow output", nil
	}

	var wg sync.WaitGroup
	outcomes := make([]StageOutcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.RunStage(ctx, sess.ID, session.StageCVAnalysis)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, 1, gen.callCount(), "duplicates share one execution")
	assert.Equal(t, outcomes[0], outcomes[1])
}

// gatedAI blocks Generate until released and reports the ctx state it saw.
type gatedAI struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedAI) Generate(ctx context.Context, _ ai.Request) (string, error) {
	close(g.started)
	<-g.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "late output", nil
}

func TestCallerDisconnectDoesNotAbortStage(t *testing.T) {
	svc, _ := newTestService(t)
	gen := &gatedAI{started: make(chan struct{}), release: make(chan struct{})}
	svc.AI = gen
	sess := createTestSession(t, svc, "interview.mp4", 2*mb)

	callerCtx, cancel := context.WithCancel(context.Background())
	var out StageOutcome
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		out, err = svc.RunStage(callerCtx, sess.ID, session.StageCVAnalysis)
	}()

	// Disconnect the caller while the provider call is in flight.
	<-gen.started
	cancel()
	close(gen.release)
	<-done

	require.NoError(t, err, "a started stage runs to completion")
	assert.Equal(t, session.StatusCVAnalyzed, out.Status)

	got, gerr := svc.Get(context.Background(), sess.ID)
	require.NoError(t, gerr)
	assert.Equal(t, "late output", got.Results[session.ResultCVAnalysis])
	assert.Equal(t, session.StatusCVAnalyzed, got.Status)
}

// flakyStore fails every Update past the given count.
type flakyStore struct {
	session.Store
	allowed int
	seen    int
}

func (s *flakyStore) Update(ctx context.Context, id string, mutate func(*session.Session) error) error {
	s.seen++
	if s.seen > s.allowed {
		return session.ErrNotFound
	}
	return s.Store.Update(ctx, id, mutate)
}

func TestStageFailurePropagatesWhenErrorStatusWriteFails(t *testing.T) {
	svc, gen := newTestService(t)
	core, logs := observer.New(zap.WarnLevel)
	svc.Logger = zap.New(core)
	sess := createTestSession(t, svc, "interview.mp4", 2*mb)

	// First Update (running status) succeeds, the error-status write fails,
	// as if the reaper removed the session mid-stage.
	svc.Store = &flakyStore{Store: svc.Store, allowed: 1}
	gen.respond = func(ai.Request) (string, error) {
		return "", fmt.Errorf("throttled: %w", ai.ErrRateLimited)
	}

	_, err := svc.RunStage(context.Background(), sess.ID, session.StageCVAnalysis)
	require.ErrorIs(t, err, ai.ErrRateLimited, "the stage failure wins over the status write failure")
	assert.Equal(t, 1, logs.FilterMessage("could not record error status").Len())
}

func TestUnknownSessionID(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RunStage(context.Background(), "nope", session.StageCVAnalysis)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
