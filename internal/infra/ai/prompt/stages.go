// Package prompt builds the per-stage instructions sent to the AI provider.
// Every builder returns markdown-oriented instructions and weaves in the
// prior stage outputs the stage depends on.
package prompt

import (
	"fmt"
	"strings"
)

// CVAnalysis reviews the attached CV against the job description.
func CVAnalysis(jobDescription string) string {
	return fmt.Sprintf(`You are an experienced technical recruiter. Analyze the attached CV against the job description below and respond in markdown.

Job description:
%s

Cover, with headings:
- Candidate summary (role, seniority, years of experience)
- Key technical skills and how they map to the job requirements
- Notable projects or achievements
- Gaps or risks relative to the role
- Overall fit assessment with a short justification`, jobDescription)
}

// Transcription asks for a verbatim transcript of the attached recording.
func Transcription(mediaKind string) string {
	return fmt.Sprintf(`Transcribe the attached %s recording of a candidate interview verbatim. Respond in markdown.

Rules:
- Preserve the spoken language of the recording.
- Label speakers as **Interviewer** and **Candidate** where distinguishable.
- Mark unintelligible passages as [inaudible].
- Do not summarize, paraphrase, or correct grammar.`, mediaKind)
}

// FaceAnalysis covers non-verbal signals in the attached video.
func FaceAnalysis() string {
	return `Watch the attached interview video and describe the candidate's non-verbal communication in markdown.

Cover, with headings:
- Eye contact and gaze behavior
- Facial expressions and their changes across the interview
- Posture and gestures
- Apparent confidence and stress indicators
- Overall non-verbal impression

Describe only what is visible. Do not speculate about character or protected attributes.`
}

// TechnicalAnalysis assesses depth of technical answers using the CV analysis
// and the transcript as context.
func TechnicalAnalysis(jobDescription, cvAnalysis, transcript string) string {
	return joinSections(
		`You are a senior engineer conducting a technical assessment. Using the job description, the CV analysis, and the interview transcript below, assess the candidate's technical competence in markdown: correctness and depth of answers, problem-solving approach, familiarity with the required stack, and concrete examples cited. End with a rating from 1 to 10 and its rationale.`,
		section("Job description", jobDescription),
		section("CV analysis", cvAnalysis),
		section("Interview transcript", transcript),
	)
}

// CommunicationAnalysis assesses spoken communication from the transcript.
func CommunicationAnalysis(transcript string) string {
	return joinSections(
		`Assess the candidate's communication skills from the interview transcript below, in markdown: clarity and structure of answers, vocabulary and precision, listening and responsiveness, and tone. End with a rating from 1 to 10 and its rationale.`,
		section("Interview transcript", transcript),
	)
}

// FinalReport merges all prior analyses into a hiring report. faceAnalysis is
// empty for audio sessions and omitted from the prompt.
func FinalReport(jobDescription, cvAnalysis, transcript, technical, communication, faceAnalysis string) string {
	sections := []string{
		`You are the hiring committee's rapporteur. Combine the analyses below into a final hiring report in markdown with these sections: Executive Summary, CV Review, Interview Highlights, Technical Assessment, Communication Assessment, Non-verbal Observations (only if provided), Risks and Open Questions, and a final Hire / No Hire recommendation with confidence level.`,
		section("Job description", jobDescription),
		section("CV analysis", cvAnalysis),
		section("Interview transcript", transcript),
		section("Technical assessment", technical),
		section("Communication assessment", communication),
	}
	if strings.TrimSpace(faceAnalysis) != "" {
		sections = append(sections, section("Non-verbal analysis", faceAnalysis))
	}
	return joinSections(sections...)
}

func section(title, body string) string {
	return fmt.Sprintf("## %s\n\n%s", title, strings.TrimSpace(body))
}

func joinSections(parts ...string) string {
	return strings.Join(parts, "\n\n")
}
