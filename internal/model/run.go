package model

import "time"

// PhaseID identifies a pipeline phase. Order matters: the orchestrator
// advances through Phases front to back, and resume picks the latest
// checkpointed phase in that order.
type PhaseID string

const (
	PhaseRoster      PhaseID = "phase1_roster"
	PhaseDirectories PhaseID = "phase2a_directories"
	PhaseWebsites    PhaseID = "phase2b_websites"
	PhaseRegistry    PhaseID = "phase3a_registry"
	PhaseEmails      PhaseID = "phase3b_emails"
	PhaseFallback    PhaseID = "phase3c_fallback"
)

// Phases lists all pipeline phases in execution order.
var Phases = []PhaseID{
	PhaseRoster,
	PhaseDirectories,
	PhaseWebsites,
	PhaseRegistry,
	PhaseEmails,
	PhaseFallback,
}

// PhaseStatus is the terminal state of a phase within a run.
type PhaseStatus string

const (
	PhaseStatusComplete  PhaseStatus = "complete"
	PhaseStatusExhausted PhaseStatus = "quota_exhausted"
	PhaseStatusFailed    PhaseStatus = "failed"
	PhaseStatusSkipped   PhaseStatus = "skipped"
)

// PhaseResult records the outcome of one phase for the run report.
type PhaseResult struct {
	Phase      PhaseID        `json:"phase"`
	Status     PhaseStatus    `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Processed  int            `json:"processed"`
	Found      int            `json:"found"`
	Errors     int            `json:"errors"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RunMetadata is the coverage summary attached to each run's final output.
// It is the pipeline's contract with the downstream presentation app.
type RunMetadata struct {
	RunID             string            `json:"run_id"`
	Institution       string            `json:"institution"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
	TotalFaculty      int               `json:"total_faculty"`
	WebsitesFound     int               `json:"websites_found"`
	WebsiteCoverage   float64           `json:"website_coverage"`
	EmailsFound       int               `json:"emails_found"`
	EmailCoverage     float64           `json:"email_coverage"`
	EmailSources      map[string]int    `json:"email_sources"`
	HighConfEmails    int               `json:"high_confidence_emails"`
	TopicsCoverage    float64           `json:"research_topics_coverage"`
	SearchQueriesUsed int               `json:"search_queries_used"`
	QuotaExhausted    map[string]bool   `json:"quota_exhausted,omitempty"`
	ItemFailures      map[string]int    `json:"item_failures,omitempty"`
	Phases            []PhaseResult     `json:"phases"`
}

// RunResult is the final, immutable output snapshot of a completed run.
type RunResult struct {
	Metadata RunMetadata     `json:"metadata"`
	Faculty  []FacultyRecord `json:"faculty"`
}

// CoverageStats recomputes roster coverage from the records themselves.
func CoverageStats(roster []FacultyRecord) (websites, emails, highConf, topics int, sources map[string]int) {
	sources = make(map[string]int)
	for i := range roster {
		f := &roster[i]
		if f.HasWebsite() {
			websites++
		}
		if f.HasEmail() {
			emails++
			sources[string(f.Email.Source)]++
			if f.Email.Confidence == ConfidenceHigh {
				highConf++
			}
		}
		if len(f.Research.Topics) > 0 {
			topics++
		}
	}
	return websites, emails, highConf, topics, sources
}
