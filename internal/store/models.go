// Package store contains the persistence layer for simplane.
package store

import "time"

// Point is a single vertex of a captured outline, in frame pixel coordinates.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Job is a simulation submitted from the capture station.
// Name, Contact and Contour are immutable once the job is created.
type Job struct {
	ID             int       `yaml:"id"`
	Name           string    `yaml:"name"`
	Contact        string    `yaml:"contact"`
	Contour        []Point   `yaml:"contour"`
	CreatedAt      time.Time `yaml:"created_at"`
	ExternalHandle string    `yaml:"external_handle,omitempty"`

	// Fields below live in their own files and are not part of the blob.
	AvatarID int      `yaml:"-"`
	Score    *float64 `yaml:"-"`
}

// Sentinels is the set of lifecycle markers observed for a job directory.
type Sentinels struct {
	Created  bool
	Started  bool
	Finished bool

	// StartedAt is the modification time of the started marker, zero if absent.
	StartedAt time.Time
}

// Sentinel file names. They are part of the on-disk contract shared with the
// batch script and any out-of-process reader.
const (
	SentinelCreated  = "status.created"
	SentinelStarted  = "status.started"
	SentinelFinished = "status.finished"
	SentinelExport   = "status.toprint"
)

// Other files in a job directory.
const (
	MetadataFile = "job.yaml"
	ScoreFile    = "drag.txt"
	AvatarFile   = "avatar_id"
	OutlineFile  = "outline-coords.dat"
	HandleFile   = "job_id"
	BatchFile    = "slurm.batch"
	LogFile      = "slurm.output"
	HostsFile    = "slurm.hosts"

	// DefaultSolverScoreFile is where the solver writes its result unless
	// configured otherwise. Only the tracker writes ScoreFile.
	DefaultSolverScoreFile = "forces.dat"
)

// Result is an archived record of a finished simulation.
type Result struct {
	SimulationID int
	Name         string
	Contact      string
	AvatarID     int
	Score        *float64
	Handle       string
	FinishedAt   time.Time
}
