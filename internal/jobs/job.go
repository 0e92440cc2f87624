package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/common"
)

// Progress is a point-in-time snapshot of how far a job has advanced.
type Progress struct {
	Current              int    `json:"current"`
	TotalPDFs            int    `json:"total_pdfs"`
	SignInPagesFound     int    `json:"signin_pages_found"`
	SignInPagesProcessed int    `json:"signin_pages_processed"`
	CurrentStage         string `json:"current_stage"`
}

// Job is one batch submission and its lifecycle state.
type Job struct {
	ID          uuid.UUID
	PDFPaths    []string
	Status      constants.JobStatus
	Progress    Progress
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// forward is the only legal move per status. Terminal statuses have none.
var forward = map[constants.JobStatus][]constants.JobStatus{
	constants.JobStatusQueued:          {constants.JobStatusUploading, constants.JobStatusFailed},
	constants.JobStatusUploading:       {constants.JobStatusExtractingPages, constants.JobStatusFailed},
	constants.JobStatusExtractingPages: {constants.JobStatusOcrProcessing, constants.JobStatusCompleted, constants.JobStatusFailed},
	constants.JobStatusOcrProcessing:   {constants.JobStatusSavingResults, constants.JobStatusFailed},
	constants.JobStatusSavingResults:   {constants.JobStatusCompleted, constants.JobStatusFailed},
}

func canTransition(from, to constants.JobStatus) bool {
	for _, s := range forward[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tracker holds job state in memory. All mutation goes through it; callers
// get copies, never live pointers.
type Tracker struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[uuid.UUID]*Job)}
}

// Create registers a queued job for the given documents.
func (t *Tracker) Create(pdfPaths []string) Job {
	j := &Job{
		ID:          uuid.New(),
		PDFPaths:    append([]string(nil), pdfPaths...),
		Status:      constants.JobStatusQueued,
		Progress:    Progress{TotalPDFs: len(pdfPaths), CurrentStage: string(constants.JobStatusQueued)},
		SubmittedAt: time.Now(),
	}
	t.mu.Lock()
	t.jobs[j.ID] = j
	t.mu.Unlock()
	return *j
}

// Get returns a snapshot of the job.
func (t *Tracker) Get(id uuid.UUID) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, common.ErrNotFound
	}
	return *j, nil
}

// Advance moves the job to the next status. Moves that skip stages, go
// backwards or leave a terminal status are rejected.
func (t *Tracker) Advance(id uuid.UUID, to constants.JobStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if j.Status.Terminal() || !canTransition(j.Status, to) {
		return common.NewAppError("JOB_TRANSITION", string(j.Status)+" -> "+string(to), common.ErrInvalidInput)
	}
	if j.Status == constants.JobStatusQueued {
		j.StartedAt = time.Now()
	}
	j.Status = to
	j.Progress.CurrentStage = string(to)
	if to.Terminal() {
		j.FinishedAt = time.Now()
	}
	return nil
}

// Fail moves the job to failed with a reason, from any non-terminal status.
func (t *Tracker) Fail(id uuid.UUID, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok || j.Status.Terminal() {
		return
	}
	j.Status = constants.JobStatusFailed
	j.Progress.CurrentStage = string(constants.JobStatusFailed)
	j.Error = reason
	j.FinishedAt = time.Now()
}

// Update applies fn to the job's progress under the tracker lock.
func (t *Tracker) Update(id uuid.UUID, fn func(p *Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		fn(&j.Progress)
	}
}

// List returns snapshots of all known jobs, newest first.
func (t *Tracker) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].SubmittedAt.After(out[k].SubmittedAt) })
	return out
}
