package session

// Status is the single discrete lifecycle state of a session. It is a closed
// set: every value a session can hold is declared here, and stage transitions
// go through Running/Completed so illegal states cannot be constructed.
type Status string

const (
	StatusInitialized Status = "initialized"

	StatusAnalyzingCV        Status = "analyzing_cv"
	StatusCVAnalyzed         Status = "cv_analyzed"
	StatusCVAnalyzedFallback Status = "cv_analyzed_fallback"

	StatusTranscribingMedia        Status = "transcribing_media"
	StatusAudioTranscribed         Status = "audio_transcribed"
	StatusVideoTranscribed         Status = "video_transcribed"
	StatusAudioTranscribedFallback Status = "audio_transcribed_fallback"
	StatusVideoTranscribedFallback Status = "video_transcribed_fallback"

	StatusAnalyzingFace        Status = "analyzing_face"
	StatusFaceAnalyzed         Status = "face_analyzed"
	StatusFaceAnalyzedFallback Status = "face_analyzed_fallback"

	StatusAnalyzingTechnical        Status = "analyzing_technical"
	StatusTechnicalAnalyzed         Status = "technical_analyzed"
	StatusTechnicalAnalyzedFallback Status = "technical_analyzed_fallback"

	StatusAnalyzingCommunication        Status = "analyzing_communication"
	StatusCommunicationAnalyzed         Status = "communication_analyzed"
	StatusCommunicationAnalyzedFallback Status = "communication_analyzed_fallback"

	StatusGeneratingFinalReport Status = "generating_final_report"
	StatusCompleted             Status = "completed"
	StatusCompletedFallback     Status = "completed_fallback"

	StatusError Status = "error"
)

// Running returns the in-progress status entered when the stage starts.
func (s Stage) Running() Status {
	switch s {
	case StageCVAnalysis:
		return StatusAnalyzingCV
	case StageTranscription:
		return StatusTranscribingMedia
	case StageFaceAnalysis:
		return StatusAnalyzingFace
	case StageTechnicalAnalysis:
		return StatusAnalyzingTechnical
	case StageCommunicationAnalysis:
		return StatusAnalyzingCommunication
	case StageFinalReport:
		return StatusGeneratingFinalReport
	}
	return StatusError
}

// Completed returns the terminal status for the stage. Transcription statuses
// carry the media kind; fallback completions are distinct so clients can tell
// placeholder output from real analysis.
func (s Stage) Completed(kind MediaKind, fallback bool) Status {
	switch s {
	case StageCVAnalysis:
		if fallback {
			return StatusCVAnalyzedFallback
		}
		return StatusCVAnalyzed
	case StageTranscription:
		switch {
		case kind == MediaVideo && fallback:
			return StatusVideoTranscribedFallback
		case kind == MediaVideo:
			return StatusVideoTranscribed
		case fallback:
			return StatusAudioTranscribedFallback
		default:
			return StatusAudioTranscribed
		}
	case StageFaceAnalysis:
		if fallback {
			return StatusFaceAnalyzedFallback
		}
		return StatusFaceAnalyzed
	case StageTechnicalAnalysis:
		if fallback {
			return StatusTechnicalAnalyzedFallback
		}
		return StatusTechnicalAnalyzed
	case StageCommunicationAnalysis:
		if fallback {
			return StatusCommunicationAnalyzedFallback
		}
		return StatusCommunicationAnalyzed
	case StageFinalReport:
		if fallback {
			return StatusCompletedFallback
		}
		return StatusCompleted
	}
	return StatusError
}

// StatusFromResults derives the status implied by the results present, i.e.
// the completed status of the last stage (in pipeline order) that has output,
// or initialized when none has. Used to rewind before a stage retry; the
// non-fallback variant is reported since fallback provenance of earlier
// stages is not tracked per result.
func StatusFromResults(sess *Session) Status {
	stages := StagesFor(sess.MediaKind)
	for i := len(stages) - 1; i >= 0; i-- {
		if _, ok := sess.Results[stages[i].ResultKey()]; ok {
			return stages[i].Completed(sess.MediaKind, false)
		}
	}
	return StatusInitialized
}
