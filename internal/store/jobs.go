package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListOptions drives pagination on the List* queries below.
type ListOptions struct {
	Limit  int
	Offset int
}

// JobStore is the BackupJob half of the configuration store: CRUD plus the
// queries the Scheduler and Job Executor need (ListEnabled, destination
// loading).
type JobStore struct {
	db *gorm.DB
}

// NewJobStore returns a JobStore backed by the provided *gorm.DB.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new backup job record.
func (s *JobStore) Create(ctx context.Context, job *BackupJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("store: create backup job: %w", err)
	}
	return nil
}

// GetByID retrieves a backup job by ID. Returns ErrNotFound if missing.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*BackupJob, error) {
	var job BackupJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get backup job by id: %w", err)
	}
	return &job, nil
}

// GetByIDWithDestinations retrieves a job together with its join rows to
// Destination, loaded via an explicit query rather than GORM association
// resolution (UUID primary keys defeat GORM's automatic FK inference, the
// same constraint the teacher's Policy/Job models document).
func (s *JobStore) GetByIDWithDestinations(ctx context.Context, id uuid.UUID) (*BackupJob, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dests, err := s.ListDestinations(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Destinations = dests
	return job, nil
}

// Update persists all fields of an existing backup job.
func (s *JobStore) Update(ctx context.Context, job *BackupJob) error {
	result := s.db.WithContext(ctx).Save(job)
	if result.Error != nil {
		return fmt.Errorf("store: update backup job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a paginated list of backup jobs and the total count, ordered
// by creation time ascending.
func (s *JobStore) List(ctx context.Context, opts ListOptions) ([]BackupJob, int64, error) {
	var jobs []BackupJob
	var total int64

	if err := s.db.WithContext(ctx).Model(&BackupJob{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list backup jobs count: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list backup jobs: %w", err)
	}
	return jobs, total, nil
}

// ListEnabled returns all enabled backup jobs, used by the Scheduler at
// startup to reconcile the repeatable queue entry set (initialize_all, §4.4).
func (s *JobStore) ListEnabled(ctx context.Context) ([]BackupJob, error) {
	var jobs []BackupJob
	if err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: list enabled backup jobs: %w", err)
	}
	return jobs, nil
}

// ListDestinations returns the join rows for a job's destinations.
func (s *JobStore) ListDestinations(ctx context.Context, jobID uuid.UUID) ([]BackupJobDestination, error) {
	var dests []BackupJobDestination
	if err := s.db.WithContext(ctx).
		Where("backup_job_id = ?", jobID).
		Find(&dests).Error; err != nil {
		return nil, fmt.Errorf("store: list job destinations: %w", err)
	}
	return dests, nil
}

// AddDestination associates a destination with a job.
func (s *JobStore) AddDestination(ctx context.Context, jd *BackupJobDestination) error {
	if err := s.db.WithContext(ctx).Create(jd).Error; err != nil {
		return fmt.Errorf("store: add job destination: %w", err)
	}
	return nil
}

// RemoveDestination removes a job/destination association.
func (s *JobStore) RemoveDestination(ctx context.Context, jobID, destinationID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("backup_job_id = ? AND destination_id = ?", jobID, destinationID).
		Delete(&BackupJobDestination{})
	if result.Error != nil {
		return fmt.Errorf("store: remove job destination: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DestinationStore is the Destination half of the configuration store.
type DestinationStore struct {
	db *gorm.DB
}

// NewDestinationStore returns a DestinationStore backed by the provided *gorm.DB.
func NewDestinationStore(db *gorm.DB) *DestinationStore {
	return &DestinationStore{db: db}
}

// Create inserts a new destination record. Enforces the invariant that s3
// destinations must reference a credential provider (spec §3).
func (s *DestinationStore) Create(ctx context.Context, dest *Destination) error {
	if dest.Type == DestinationS3 && dest.CredentialProviderID == nil {
		return fmt.Errorf("store: %w: s3 destination requires a credential provider", ErrConflict)
	}
	if err := s.db.WithContext(ctx).Create(dest).Error; err != nil {
		return fmt.Errorf("store: create destination: %w", err)
	}
	return nil
}

// GetByID retrieves a destination by ID. Returns ErrNotFound if missing.
func (s *DestinationStore) GetByID(ctx context.Context, id uuid.UUID) (*Destination, error) {
	var dest Destination
	err := s.db.WithContext(ctx).First(&dest, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get destination by id: %w", err)
	}
	return &dest, nil
}

// Update persists all fields of an existing destination.
func (s *DestinationStore) Update(ctx context.Context, dest *Destination) error {
	result := s.db.WithContext(ctx).Save(dest)
	if result.Error != nil {
		return fmt.Errorf("store: update destination: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a paginated list of destinations and the total count.
func (s *DestinationStore) List(ctx context.Context, opts ListOptions) ([]Destination, int64, error) {
	var dests []Destination
	var total int64

	if err := s.db.WithContext(ctx).Model(&Destination{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list destinations count: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&dests).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list destinations: %w", err)
	}
	return dests, total, nil
}

// CredentialProviderStore is the CredentialProvider half of the
// configuration store.
type CredentialProviderStore struct {
	db *gorm.DB
}

// NewCredentialProviderStore returns a CredentialProviderStore backed by the
// provided *gorm.DB.
func NewCredentialProviderStore(db *gorm.DB) *CredentialProviderStore {
	return &CredentialProviderStore{db: db}
}

// Create inserts a new credential provider record. cfg's sensitive fields
// must already be sealed through envelope.EncryptFields by the caller —
// the store persists whatever JSON it is given, it does not encrypt on
// behalf of callers (keeping the store itself secret-agnostic).
func (s *CredentialProviderStore) Create(ctx context.Context, cp *CredentialProvider) error {
	if err := s.db.WithContext(ctx).Create(cp).Error; err != nil {
		return fmt.Errorf("store: create credential provider: %w", err)
	}
	return nil
}

// GetByID retrieves a credential provider by ID. Returns ErrNotFound if missing.
func (s *CredentialProviderStore) GetByID(ctx context.Context, id uuid.UUID) (*CredentialProvider, error) {
	var cp CredentialProvider
	err := s.db.WithContext(ctx).First(&cp, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get credential provider by id: %w", err)
	}
	return &cp, nil
}

// Update persists all fields of an existing credential provider.
func (s *CredentialProviderStore) Update(ctx context.Context, cp *CredentialProvider) error {
	result := s.db.WithContext(ctx).Save(cp)
	if result.Error != nil {
		return fmt.Errorf("store: update credential provider: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
