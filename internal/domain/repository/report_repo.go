package repository

import (
	"github.com/yourusername/livequiz-api/internal/domain/entity"
)

// ReportRepository определяет методы для архивации итогов сессий
type ReportRepository interface {
	// Save сохраняет итоговый отчет завершенной сессии.
	// Повторная архивация того же кода сессии возвращает apperrors.ErrConflict.
	Save(report *entity.SessionReport) error
	GetByCode(sessionCode string) (*entity.SessionReport, error)
	List(limit, offset int) ([]entity.SessionReport, error)
}
