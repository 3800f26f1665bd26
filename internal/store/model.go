package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models. ID uses UUID v7
// (time-ordered) for efficient B-tree indexing and natural chronological
// ordering without a separate created_at sort.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// SourceType enumerates the backup job source types the core recognizes.
type SourceType string

const (
	SourcePostgres SourceType = "postgres"
	SourceMySQL    SourceType = "mysql"
	SourceMongoDB  SourceType = "mongodb"
	SourceRedis    SourceType = "redis"
	SourceS3       SourceType = "s3"
)

// IsDatabaseFamily reports whether t is one of the dump-tool-backed source
// types (as opposed to the s3-sync source, which copies rather than dumps).
func (t SourceType) IsDatabaseFamily() bool {
	switch t {
	case SourcePostgres, SourceMySQL, SourceMongoDB, SourceRedis:
		return true
	default:
		return false
	}
}

// DestinationType enumerates the destination types the core recognizes.
type DestinationType string

const (
	DestinationLocal DestinationType = "local"
	DestinationS3    DestinationType = "s3"
)

// RunStatus enumerates the states a RunOutcome row may be in.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// BackupJob is the user's intent: what to back up, on what schedule, to
// which destinations, with what retry policy. Lifecycle is owned externally
// (the API layer this core does not implement); the core only reads current
// state at each trigger and writes Run/RunOutcome rows that reference it.
type BackupJob struct {
	base
	Name                       string     `gorm:"not null"`
	Type                       SourceType `gorm:"not null"`
	Config                     string     `gorm:"type:text;not null;default:'{}'"` // JSON, shape depends on Type
	Schedule                   *string    `gorm:"type:text"`                      // cron expression, nil = unscheduled
	Enabled                    bool       `gorm:"not null"`
	RetentionDays              int        `gorm:"not null;default:30"`
	RetryCount                 int        `gorm:"not null;default:3"` // 0-10
	SourceCredentialProviderID *uuid.UUID `gorm:"type:text;index"`

	// Destinations is populated by explicit queries (see jobs.go), never by
	// GORM association resolution: UUID primary keys defeat GORM's automatic
	// foreign-key inference the same way they do in the teacher's models.
	Destinations []BackupJobDestination `gorm:"-"`
}

// BackupJobDestination is the join row between BackupJob and Destination,
// carrying per-channel notification preferences for that pairing.
type BackupJobDestination struct {
	base
	BackupJobID      uuid.UUID `gorm:"type:text;not null;index"`
	DestinationID    uuid.UUID `gorm:"type:text;not null;index"`
	NotifyOnSuccess  bool      `gorm:"not null;default:false"`
	NotifyOnFailure  bool      `gorm:"not null;default:true"`
}

// CredentialProvider is a named, typed credential bundle (currently only
// "s3"). Config is a JSON blob whose access_key_id/secret_access_key fields
// are individually encrypted tokens (see internal/envelope), not a blob
// encrypted as a whole — this lets non-sensitive fields like region stay
// human-readable in the database.
type CredentialProvider struct {
	base
	Name           string `gorm:"not null"`
	Type           string `gorm:"not null;default:'s3'"`
	ProviderPreset string `gorm:"not null;default:''"`
	Config         string `gorm:"type:text;not null;default:'{}'"`
}

// Destination is a typed backup target. Config is plain (non-sensitive) JSON;
// any credentials it needs are resolved at execution time via
// CredentialProviderID, never stored on the destination itself.
type Destination struct {
	base
	Name                 string          `gorm:"not null"`
	Type                 DestinationType `gorm:"not null"`
	Config               string          `gorm:"type:text;not null;default:'{}'"`
	CredentialProviderID *uuid.UUID      `gorm:"type:text;index"`
}

// RunOutcome is the state-bearing row of the run history store: one per
// (job, destination) pair within a run, or one with a nil DestinationID when
// a database job ran with zero configured destinations (see spec §4.8 step 5
// and DESIGN.md's Open Question decision).
type RunOutcome struct {
	base
	JobID           uuid.UUID  `gorm:"type:text;not null;index"`
	DestinationID   *uuid.UUID `gorm:"type:text;index"`
	RunID           uuid.UUID  `gorm:"type:text;not null;index"`
	Status          RunStatus  `gorm:"not null;index;default:'running'"`
	StartedAt       time.Time  `gorm:"not null"`
	CompletedAt     *time.Time
	FileSize        *int64
	FilePath        *string `gorm:"type:text"`
	Metadata        *string `gorm:"type:text"`
	ExecutionLog    *string `gorm:"type:text"`
	ErrorMessage    *string `gorm:"type:text"`
	LastHeartbeatAt *time.Time `gorm:"index"`
}

// TableName overrides are intentionally omitted — GORM's default
// snake_case-plural naming (backup_jobs, destinations, credential_providers,
// run_outcomes, backup_job_destinations) is used throughout, matching the
// teacher's convention.
