package repo

import "time"

// Progress is the latest observable status line for a repository's indexing
// run. One row exists per repository (upsert key = repoID); a polling client
// reads it to render progress.
type Progress struct {
	repoID       int64
	status       Status
	progress     int
	currentStep  string
	totalFiles   int
	indexedFiles int
	errorMessage string
	startedAt    time.Time
	completedAt  time.Time
}

// NewProgress creates the initial Progress row for a run.
func NewProgress(repoID int64, status Status, step string) Progress {
	return Progress{
		repoID:      repoID,
		status:      status,
		currentStep: step,
		startedAt:   time.Now().UTC(),
	}
}

// ReconstructProgress rebuilds a Progress from persisted state.
func ReconstructProgress(
	repoID int64,
	status Status,
	progress int,
	currentStep string,
	totalFiles, indexedFiles int,
	errorMessage string,
	startedAt, completedAt time.Time,
) Progress {
	return Progress{
		repoID:       repoID,
		status:       status,
		progress:     progress,
		currentStep:  currentStep,
		totalFiles:   totalFiles,
		indexedFiles: indexedFiles,
		errorMessage: errorMessage,
		startedAt:    startedAt,
		completedAt:  completedAt,
	}
}

// RepoID returns the owning repository identifier.
func (p Progress) RepoID() int64 { return p.repoID }

// Status returns the run status.
func (p Progress) Status() Status { return p.status }

// Percent returns the progress percentage in [0,100].
func (p Progress) Percent() int { return p.progress }

// CurrentStep returns the human-readable phase description.
func (p Progress) CurrentStep() string { return p.currentStep }

// TotalFiles returns the total file count for the run.
func (p Progress) TotalFiles() int { return p.totalFiles }

// IndexedFiles returns the files indexed so far.
func (p Progress) IndexedFiles() int { return p.indexedFiles }

// ErrorMessage returns the failure message, if the run failed.
func (p Progress) ErrorMessage() string { return p.errorMessage }

// StartedAt returns when the run started.
func (p Progress) StartedAt() time.Time { return p.startedAt }

// CompletedAt returns when the run reached a terminal state (zero if running).
func (p Progress) CompletedAt() time.Time { return p.completedAt }

// StatusUpdate carries one progress transition from the orchestrator to the
// store. Nil count fields leave the persisted counts untouched.
type StatusUpdate struct {
	Status       Status
	Progress     int
	Step         string
	ErrorMessage string
	TotalFiles   *int
	IndexedFiles *int
}

// Apply folds the update into a Progress row.
func (p Progress) Apply(u StatusUpdate) Progress {
	p.status = u.Status
	p.progress = u.Progress
	p.currentStep = u.Step
	p.errorMessage = u.ErrorMessage
	if u.TotalFiles != nil {
		p.totalFiles = *u.TotalFiles
	}
	if u.IndexedFiles != nil {
		p.indexedFiles = *u.IndexedFiles
	}
	if u.Status.Terminal() {
		p.completedAt = time.Now().UTC()
	}
	return p
}
