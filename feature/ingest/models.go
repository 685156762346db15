package ingest

import "time"

// Status is the state of an import task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Finished reports whether the task reached a final status.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RowError records why a data row was skipped. Rows are numbered from 1, not
// counting the header.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Task is one run of an import.
type Task struct {
	ID            string            `gorm:"primaryKey;size:36" json:"id"`
	ShopID        uint              `gorm:"not null;index" json:"shop_id"`
	Actor         *string           `gorm:"size:128" json:"actor,omitempty"`
	FileName      string            `gorm:"size:255;not null" json:"file_name"`
	Format        string            `gorm:"size:8;not null" json:"format"`
	ObjectKey     string            `gorm:"size:512" json:"object_key,omitempty"`
	ReportKey     string            `gorm:"size:512" json:"report_key,omitempty"`
	Mapping       map[string]string `gorm:"serializer:json;type:text" json:"mapping"`
	Status        Status            `gorm:"size:16;not null;index" json:"status"`
	Cancelled     bool              `gorm:"not null" json:"cancelled"`
	TotalRows     int               `gorm:"not null" json:"total_rows"`
	Created       int               `gorm:"not null" json:"created"`
	Skipped       int               `gorm:"not null" json:"skipped"`
	Errors        []RowError        `gorm:"serializer:json;type:text" json:"errors"`
	FailureReason string            `gorm:"type:text" json:"failure_reason,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName keeps import tasks apart from other task tables.
func (Task) TableName() string {
	return "import_tasks"
}

// Report is the summary written to object storage when a task finishes.
type Report struct {
	TaskID    string     `json:"task_id"`
	FileName  string     `json:"file_name"`
	Status    Status     `json:"status"`
	Cancelled bool       `json:"cancelled"`
	Created   int        `json:"created"`
	Skipped   int        `json:"skipped"`
	Errors    []RowError `json:"errors"`
}

// Models lists the persisted models of the package for migrations.
func Models() []any {
	return []any{&Task{}}
}
