package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/yourusername/livequiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/livequiz-api/internal/pkg/errors"
)

// ReportRepo реализует repository.ReportRepository
type ReportRepo struct {
	db *gorm.DB
}

// NewReportRepo создает новый репозиторий итоговых отчетов
func NewReportRepo(db *gorm.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Save архивирует итоговый отчет сессии вместе со строками лидерборда.
// Повторная архивация того же кода сессии определяется по unique constraint
// (23505 - unique_violation) и возвращается как ErrConflict.
func (r *ReportRepo) Save(report *entity.SessionReport) error {
	err := r.db.Create(report).Error
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: report for session %s already archived", apperrors.ErrConflict, report.SessionCode)
		}
		return err
	}
	return nil
}

// GetByCode возвращает архивный отчет по коду сессии
func (r *ReportRepo) GetByCode(sessionCode string) (*entity.SessionReport, error) {
	var report entity.SessionReport
	err := r.db.Preload("Entries", func(db *gorm.DB) *gorm.DB {
		return db.Order("session_report_entries.rank")
	}).Where("session_code = ?", sessionCode).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// List возвращает архивные отчеты с пагинацией, новые первыми
func (r *ReportRepo) List(limit, offset int) ([]entity.SessionReport, error) {
	var reports []entity.SessionReport
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}
