package database

import (
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/limitwatch/limitwatch/internal/models"
)

// ErrNoOpenEvent is returned when there is no unanswered event to update
var ErrNoOpenEvent = errors.New("no unanswered limit event")

// Repository handles all database operations for limit events and error logs
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateLimitEvent inserts a new limit event
func (r *Repository) CreateLimitEvent(event *models.LimitEvent) error {
	result := r.db.Create(event)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to insert limit event")
	}
	return nil
}

// GetByID retrieves a limit event by its ID
func (r *Repository) GetByID(id uint) (*models.LimitEvent, error) {
	var event models.LimitEvent
	result := r.db.First(&event, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, pkgerrors.Wrap(result.Error, "failed to get limit event")
	}
	return &event, nil
}

// RecordResponse stores the answer on the session's latest unanswered event
func (r *Repository) RecordResponse(sessionID, response string, extendMinutes int, at time.Time) error {
	var event models.LimitEvent
	result := r.db.
		Where("session_id = ? AND response = ?", sessionID, models.ResponseNone).
		Order("triggered_at DESC").
		First(&event)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrNoOpenEvent
		}
		return pkgerrors.Wrap(result.Error, "failed to find open limit event")
	}

	result = r.db.Model(&event).Updates(map[string]any{
		"response":       response,
		"extend_minutes": extendMinutes,
		"responded_at":   at,
	})
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to record response")
	}
	return nil
}

// GetEventsBetween retrieves limit events triggered in [start, end)
func (r *Repository) GetEventsBetween(start, end time.Time) ([]*models.LimitEvent, error) {
	var events []*models.LimitEvent
	result := r.db.
		Where("triggered_at >= ? AND triggered_at < ?", start, end).
		Order("triggered_at ASC").
		Find(&events)
	if result.Error != nil {
		return nil, pkgerrors.Wrap(result.Error, "failed to query limit events")
	}
	return events, nil
}

// GetRecent retrieves the most recent limit events, newest first
func (r *Repository) GetRecent(limit int) ([]*models.LimitEvent, error) {
	var events []*models.LimitEvent
	result := r.db.Order("triggered_at DESC").Limit(limit).Find(&events)
	if result.Error != nil {
		return nil, pkgerrors.Wrap(result.Error, "failed to query recent events")
	}
	return events, nil
}

// GetSourceSummaryBetween counts events per source
// Uses SQL COUNT - runtime computes percentages
func (r *Repository) GetSourceSummaryBetween(start, end time.Time) ([]models.SourceSummary, error) {
	var summaries []models.SourceSummary
	result := r.db.Model(&models.LimitEvent{}).
		Select("source, COUNT(*) as events").
		Where("triggered_at >= ? AND triggered_at < ?", start, end).
		Group("source").
		Order("events DESC, source ASC").
		Scan(&summaries)
	if result.Error != nil {
		return nil, pkgerrors.Wrap(result.Error, "failed to query source summary")
	}
	return summaries, nil
}

// GetMarkerSummaryBetween counts events per matched marker
func (r *Repository) GetMarkerSummaryBetween(start, end time.Time) ([]models.MarkerSummary, error) {
	var summaries []models.MarkerSummary
	result := r.db.Model(&models.LimitEvent{}).
		Select("marker, COUNT(*) as events").
		Where("triggered_at >= ? AND triggered_at < ? AND marker <> ''", start, end).
		Group("marker").
		Order("events DESC, marker ASC").
		Scan(&summaries)
	if result.Error != nil {
		return nil, pkgerrors.Wrap(result.Error, "failed to query marker summary")
	}
	return summaries, nil
}

// GetResponseCountsBetween aggregates answers with a single SQL pass
func (r *Repository) GetResponseCountsBetween(start, end time.Time) (*models.ResponseCounts, error) {
	var counts models.ResponseCounts
	result := r.db.Model(&models.LimitEvent{}).
		Select(`
			COALESCE(SUM(CASE WHEN response = ? THEN 1 ELSE 0 END), 0) as acknowledged,
			COALESCE(SUM(CASE WHEN response = ? THEN 1 ELSE 0 END), 0) as extended,
			COALESCE(SUM(CASE WHEN response = ? THEN 1 ELSE 0 END), 0) as stopped,
			COALESCE(SUM(CASE WHEN response = '' THEN 1 ELSE 0 END), 0) as unanswered,
			COALESCE(SUM(extend_minutes), 0) as extension_minutes`,
			models.ResponseAcknowledge, models.ResponseExtend, models.ResponseStopped).
		Where("triggered_at >= ? AND triggered_at < ?", start, end).
		Scan(&counts)
	if result.Error != nil {
		return nil, pkgerrors.Wrap(result.Error, "failed to query response counts")
	}
	return &counts, nil
}

// GetLatest retrieves the most recent limit event, or nil when there is none
func (r *Repository) GetLatest() (*models.LimitEvent, error) {
	var event models.LimitEvent
	result := r.db.Order("triggered_at DESC").First(&event)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(result.Error, "failed to get latest event")
	}
	return &event, nil
}

// DeleteOldEvents deletes events older than a specified date (soft delete)
func (r *Repository) DeleteOldEvents(before time.Time) (int64, error) {
	result := r.db.Where("triggered_at < ?", before).Delete(&models.LimitEvent{})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(result.Error, "failed to delete old events")
	}
	return result.RowsAffected, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// CountErrorsBetween counts error logs in [start, end)
func (r *Repository) CountErrorsBetween(start, end time.Time) (int64, error) {
	var n int64
	result := r.db.Model(&models.ErrorLog{}).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Count(&n)
	if result.Error != nil {
		return 0, pkgerrors.Wrap(result.Error, "failed to count error logs")
	}
	return n, nil
}

// Clear removes all limit events and error logs from the database
func (r *Repository) Clear() error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM limit_events").Error; err != nil {
			return pkgerrors.Wrap(err, "failed to clear limit events")
		}
		if err := tx.Exec("DELETE FROM error_logs").Error; err != nil {
			return pkgerrors.Wrap(err, "failed to clear error logs")
		}
		return nil
	})
}
