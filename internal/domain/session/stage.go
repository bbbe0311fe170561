package session

// Stage is one discrete unit of the analysis pipeline.
type Stage string

const (
	StageCVAnalysis            Stage = "cv_analysis"
	StageTranscription         Stage = "media_transcription"
	StageFaceAnalysis          Stage = "face_analysis"
	StageTechnicalAnalysis     Stage = "technical_analysis"
	StageCommunicationAnalysis Stage = "communication_analysis"
	StageFinalReport           Stage = "final_report"
)

// ParseStage maps a route parameter to a known stage.
func ParseStage(s string) (Stage, bool) {
	switch Stage(s) {
	case StageCVAnalysis, StageTranscription, StageFaceAnalysis,
		StageTechnicalAnalysis, StageCommunicationAnalysis, StageFinalReport:
		return Stage(s), true
	}
	return "", false
}

// ResultKey returns the slot the stage writes in Session.Results.
func (s Stage) ResultKey() ResultKey {
	switch s {
	case StageCVAnalysis:
		return ResultCVAnalysis
	case StageTranscription:
		return ResultTranscription
	case StageFaceAnalysis:
		return ResultFaceAnalysis
	case StageTechnicalAnalysis:
		return ResultTechnicalAnalysis
	case StageCommunicationAnalysis:
		return ResultCommunicationAnalysis
	case StageFinalReport:
		return ResultFinalReport
	}
	return ""
}

// Prerequisites lists the results that must exist before the stage may run.
// CV analysis and transcription are independent of each other; face analysis
// is gated on media kind instead (see Service).
func (s Stage) Prerequisites() []ResultKey {
	switch s {
	case StageTechnicalAnalysis:
		return []ResultKey{ResultTranscription, ResultCVAnalysis}
	case StageCommunicationAnalysis:
		return []ResultKey{ResultTranscription}
	case StageFinalReport:
		return []ResultKey{ResultCVAnalysis, ResultTranscription, ResultTechnicalAnalysis, ResultCommunicationAnalysis}
	}
	return nil
}

// MissingPrerequisites returns prerequisites absent from results, in table order.
func (s Stage) MissingPrerequisites(results map[ResultKey]string) []ResultKey {
	var missing []ResultKey
	for _, key := range s.Prerequisites() {
		if _, ok := results[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// NeedsAttachment reports whether the stage sends a file to the provider.
func (s Stage) NeedsAttachment() bool {
	switch s {
	case StageCVAnalysis, StageTranscription, StageFaceAnalysis:
		return true
	}
	return false
}

// stageOrder is the nominal forward order of the pipeline. Face analysis is
// skipped for audio sessions.
var stageOrder = []Stage{
	StageCVAnalysis,
	StageTranscription,
	StageFaceAnalysis,
	StageTechnicalAnalysis,
	StageCommunicationAnalysis,
	StageFinalReport,
}

// StagesFor returns the pipeline order for a media kind.
func StagesFor(kind MediaKind) []Stage {
	if kind == MediaVideo {
		return stageOrder
	}
	out := make([]Stage, 0, len(stageOrder)-1)
	for _, st := range stageOrder {
		if st == StageFaceAnalysis {
			continue
		}
		out = append(out, st)
	}
	return out
}

// NextStage reports the first stage in pipeline order whose result is missing.
// The second return is false once every stage has produced output.
func NextStage(sess *Session) (Stage, bool) {
	for _, st := range StagesFor(sess.MediaKind) {
		if _, ok := sess.Results[st.ResultKey()]; !ok {
			return st, true
		}
	}
	return "", false
}
