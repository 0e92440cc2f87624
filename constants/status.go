package constants

// JobStatus is the canonical lifecycle status for a processing job.
type JobStatus string

// Stable values (surfaced verbatim on the job-status endpoint).
const (
	JobStatusQueued          JobStatus = "queued"
	JobStatusUploading       JobStatus = "uploading"
	JobStatusExtractingPages JobStatus = "extracting_pages"
	JobStatusOcrProcessing   JobStatus = "ocr_processing"
	JobStatusSavingResults   JobStatus = "saving_results"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
)

// Terminal reports whether a status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PageKind classifies a rendered document page.
type PageKind string

const (
	PageUnclassified PageKind = ""
	PageSignIn       PageKind = "signin"
	PageOther        PageKind = "dinein"
)

// Classification is the compliance category assigned to an attendee record.
type Classification string

const (
	ClassificationHCP           Classification = "HCP"
	ClassificationFieldEmployee Classification = "Field Employee"
	ClassificationNonHCP        Classification = "Non-HCP"
)

// MatchMethod records which matching tier produced a classification.
const (
	MatchExactPossibleNames = "exact_possiblenames"
	MatchExactCredential    = "exact_credential"
	MatchFuzzyPossibleNames = "fuzzy_possiblenames"
	MatchNone               = "no_match"
	MatchFieldEmployee      = "field_employee_header"
)
