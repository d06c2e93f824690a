package store

import (
	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

// NewRunStore crea el almacén del histórico de ejecuciones según el tipo
// configurado.
func NewRunStore(storeType string, path string) (ports.RunStore, error) {
	switch storeType {
	case "memory":
		return NewMemoryRunStore(), nil
	case "persistent":
		return NewBoltRunStore(path, 0o600, "runs")
	default:
		return nil, &domain.ConfigError{Reason: "unknown store type " + storeType}
	}
}
