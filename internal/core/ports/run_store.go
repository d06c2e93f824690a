package ports

import "dev.csaopt.io/csaopt/internal/core/domain"

// RunStore persiste los resúmenes de ejecuciones de optimización.
type RunStore interface {
	Save(run *domain.RunRecord) error
	Get(id string) (*domain.RunRecord, error)
	List() ([]*domain.RunRecord, error)
	Close() error
}
