package audit

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AuditRow relational form of a Record
type AuditRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Kind          string    `gorm:"size:32;index"`
	Service       string    `gorm:"size:128;index:idx_audit_service_time,priority:1"`
	Action        string    `gorm:"size:32"`
	FromState     string    `gorm:"size:16"`
	ToState       string    `gorm:"size:16"`
	FromInstances int       `gorm:"not null;default:0"`
	ToInstances   int       `gorm:"not null;default:0"`
	Rule          string    `gorm:"size:128"`
	Metric        string    `gorm:"size:32"`
	Threshold     float64   `gorm:"not null;default:0"`
	Value         float64   `gorm:"not null;default:0"`
	Reason        string    `gorm:"size:512"`
	CreatedAt     time.Time `gorm:"index:idx_audit_service_time,priority:2"`
}

func (AuditRow) TableName() string { return "guard_audit_records" }

// SQLWriter appends records to guard_audit_records
type SQLWriter struct {
	db *gorm.DB
}

// NewSQLWriter migrates the table and returns the writer
func NewSQLWriter(db *gorm.DB) (*SQLWriter, error) {
	if err := db.AutoMigrate(&AuditRow{}); err != nil {
		return nil, ErrConfig.Wrap(err)
	}
	return &SQLWriter{db: db}, nil
}

func (w *SQLWriter) Name() string { return "sql:" + w.db.Dialector.Name() }

func (w *SQLWriter) Write(ctx context.Context, records []Record) error {
	rows := make([]AuditRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, AuditRow{
			ID:            r.ID,
			Kind:          string(r.Kind),
			Service:       r.Service,
			Action:        r.Action,
			FromState:     r.FromState,
			ToState:       r.ToState,
			FromInstances: r.FromInstances,
			ToInstances:   r.ToInstances,
			Rule:          r.Rule,
			Metric:        r.Metric,
			Threshold:     r.Threshold,
			Value:         r.Value,
			Reason:        r.Reason,
			CreatedAt:     r.Timestamp,
		})
	}
	if err := w.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return ErrWrite.Wrap(err)
	}
	return nil
}

// History newest rows for service, empty service lists all
func (w *SQLWriter) History(ctx context.Context, service string, limit int) ([]AuditRow, error) {
	q := w.db.WithContext(ctx).Order("created_at DESC")
	if service != "" {
		q = q.Where("service = ?", service)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []AuditRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Close leaves the connection pool to the database owner
func (w *SQLWriter) Close() error { return nil }
