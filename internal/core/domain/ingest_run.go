package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IngestRun records a committed flattening run. It is written in the same
// transaction as the rows it describes, so a failed run leaves no entry.
type IngestRun struct {
	RunID                uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"run_id"`
	SourcePath           string    `gorm:"type:text;not null" json:"source_path"`
	SourceHash           string    `gorm:"type:varchar(64);index" json:"source_hash"`
	GroupCount           int64     `gorm:"not null;default:0" json:"group_count"`
	FileCount            int64     `gorm:"not null;default:0" json:"file_count"`
	MatchCount           int64     `gorm:"not null;default:0" json:"match_count"`
	MarkedYes            int64     `gorm:"not null;default:0" json:"marked_y"`
	MarkedNo             int64     `gorm:"not null;default:0" json:"marked_n"`
	FullyIdenticalGroups int64     `gorm:"not null;default:0" json:"fully_identical_groups"`
	DefaultsApplied      int64     `gorm:"not null;default:0" json:"defaults_applied"`
	BatchSize            int       `gorm:"not null" json:"batch_size"`
	StartedAt            time.Time `gorm:"not null" json:"started_at"`
	CompletedAt          time.Time `gorm:"not null" json:"completed_at"`
}

// TableName specifies the table name for GORM
func (IngestRun) TableName() string {
	return "ingest_runs"
}

// BeforeCreate GORM hook - called before creating a record
func (r *IngestRun) BeforeCreate(tx *gorm.DB) error {
	if r.RunID == uuid.Nil {
		r.RunID = uuid.New()
	}
	return nil
}

// Duration returns how long the run took.
func (r IngestRun) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Models lists every table of the store in creation order.
func Models() []interface{} {
	return []interface{}{
		&GroupFile{},
		&Match{},
		&IngestRun{},
	}
}
