package store

import (
	"context"
	"io"
)

// JobStore owns the on-disk representation of simulations.
// No other component reads or writes job directories directly.
type JobStore interface {
	// CreateJob allocates the next identifier and writes the metadata blob.
	// The job is not marked created until FinalizeSubmission.
	CreateJob(ctx context.Context, name, contact string, contour []Point) (int, error)

	// FinalizeSubmission records the external handle and marks the job created.
	FinalizeSubmission(ctx context.Context, id int, handle string) error

	// ReadJob loads a created job. Returns ErrNotFound if the created marker
	// or the metadata blob is missing.
	ReadJob(ctx context.Context, id int) (*Job, error)

	// RecordScore overwrites the score for a job.
	RecordScore(ctx context.Context, id int, score float64) error

	// ListIDs returns every job directory with a well-formed numeric name.
	ListIDs(ctx context.Context) ([]int, error)

	// Sentinels reports which lifecycle markers exist for a job.
	Sentinels(ctx context.Context, id int) (Sentinels, error)

	// SetStarted writes the started marker with the external handle as content.
	SetStarted(ctx context.Context, id int, handle string) error

	// SetFinished writes the finished marker.
	SetFinished(ctx context.Context, id int) error

	AvatarStore
	ExportStore
	ArtifactStore
}

// AvatarStore persists the avatar assigned to each job.
type AvatarStore interface {
	SetAvatar(ctx context.Context, id, avatarID int) error
	// Avatar returns 0 when no avatar was recorded.
	Avatar(ctx context.Context, id int) (int, error)
}

// ExportStore manages the ready-to-export marker, which is independent of the
// lifecycle state machine.
type ExportStore interface {
	SetReadyToExport(ctx context.Context, id int) error
	ClearReadyToExport(ctx context.Context, id int) error
	ReadyToExport(ctx context.Context) ([]int, error)
}

// ArtifactStore covers the auxiliary files exchanged with the external job.
type ArtifactStore interface {
	WriteOutline(ctx context.Context, id int, contour []Point) error
	ReadOutline(ctx context.Context, id int) ([]Point, error)
	// WriteArtifact atomically writes a named file into the job directory and
	// returns its path.
	WriteArtifact(ctx context.Context, id int, name string, data []byte) (string, error)
	// OpenArtifact opens a named file in the job directory for reading.
	OpenArtifact(ctx context.Context, id int, name string) (io.ReadCloser, error)
	// Nodes returns the hosts the batch script recorded, or nil.
	Nodes(ctx context.Context, id int) ([]string, error)
	// Dir returns the job directory path.
	Dir(id int) string
}

// ResultArchive stores finished simulations for long-term history.
type ResultArchive interface {
	RecordResult(ctx context.Context, result Result) error
	ListResults(ctx context.Context, limit int) ([]Result, error)
	Ping(ctx context.Context) error
}
