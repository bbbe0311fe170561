// Package fallback produces deterministic placeholder output for stages whose
// AI call could not be served. The pipeline stores the placeholder as the
// stage result so later stages and the UI keep rendering a coherent document.
package fallback

import (
	"fmt"
	"strings"
)

// Generator implements ai.Fallback. Stateless; output depends only on inputs.
type Generator struct{}

func New() *Generator { return &Generator{} }

type stageTemplate struct {
	title     string
	checklist []string
}

var templates = map[string]stageTemplate{
	"cv_analysis": {
		title: "CV Analysis",
		checklist: []string{
			"Candidate summary (role, seniority, years of experience)",
			"Key technical skills mapped to the job requirements",
			"Notable projects and achievements",
			"Gaps or risks relative to the role",
			"Overall fit assessment",
		},
	},
	"media_transcription": {
		title: "Interview Transcription",
		checklist: []string{
			"Verbatim transcript with speaker labels",
			"Timestamps for major topic changes",
			"Markers for unintelligible passages",
		},
	},
	"face_analysis": {
		title: "Non-verbal Analysis",
		checklist: []string{
			"Eye contact and gaze behavior",
			"Facial expressions over the course of the interview",
			"Posture and gestures",
			"Confidence and stress indicators",
		},
	},
	"technical_analysis": {
		title: "Technical Assessment",
		checklist: []string{
			"Correctness and depth of technical answers",
			"Problem-solving approach",
			"Familiarity with the required stack",
			"Concrete examples cited by the candidate",
			"Technical rating (1-10) with rationale",
		},
	},
	"communication_analysis": {
		title: "Communication Assessment",
		checklist: []string{
			"Clarity and structure of answers",
			"Vocabulary and precision",
			"Listening and responsiveness",
			"Communication rating (1-10) with rationale",
		},
	},
	"final_report": {
		title: "Final Hiring Report",
		checklist: []string{
			"Executive summary",
			"Synthesis of CV, interview, technical and communication findings",
			"Risks and open questions",
			"Hire / No Hire recommendation with confidence level",
		},
	},
}

// Generate renders the placeholder markdown for a stage. It names the stage,
// states why real analysis is absent, and lists what the stage would normally
// report. mediaKind and jobDescription are optional context lines.
func (Generator) Generate(stageName, fileLabel, mediaKind, jobDescription string) string {
	tpl, ok := templates[stageName]
	if !ok {
		tpl = stageTemplate{title: stageName}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s (Unavailable)\n\n", tpl.title)
	b.WriteString("> **Note:** The AI analysis service was temporarily overloaded, so this stage contains placeholder content instead of a real analysis. Use the retry action to generate the full report once the service recovers.\n\n")

	if fileLabel != "" {
		fmt.Fprintf(&b, "- **Input file:** %s\n", fileLabel)
	}
	if mediaKind != "" {
		fmt.Fprintf(&b, "- **Media kind:** %s\n", mediaKind)
	}
	if jd := strings.TrimSpace(jobDescription); jd != "" {
		fmt.Fprintf(&b, "- **Position:** %s\n", firstLine(jd))
	}
	b.WriteString("\n")

	if len(tpl.checklist) > 0 {
		b.WriteString("A completed analysis would cover:\n\n")
		for _, item := range tpl.checklist {
			fmt.Fprintf(&b, "- [ ] %s\n", item)
		}
		b.WriteString("\n")
	}

	b.WriteString("*No conclusions should be drawn from this placeholder.*\n")
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	const max = 120
	if len(s) > max {
		s = s[:max] + "..."
	}
	return strings.TrimSpace(s)
}
