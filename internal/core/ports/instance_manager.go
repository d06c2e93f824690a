package ports

import (
	"context"

	"dev.csaopt.io/csaopt/internal/core/domain"
)

// InstanceManager define la capacidad de adquirir y liberar el conjunto de
// recursos de cómputo de una ejecución: un broker y N workers. Se usa como
// recurso con ámbito: adquirir al entrar, liberación garantizada en toda
// salida.
type InstanceManager interface {
	// Provision solicita la creación de los recursos remotos y bloquea hasta
	// que reportan estar en ejecución o vence el plazo de aprovisionamiento.
	// Ante un fallo parcial intenta destruir lo ya creado antes de propagar
	// el error.
	Provision(ctx context.Context) (broker *domain.Instance, workers []*domain.Instance, err error)

	// Teardown termina todas las instancias gestionadas y libera los recursos
	// auxiliares creados para el aislamiento. Idempotente.
	Teardown(ctx context.Context) error

	// RunningInstances retorna las instancias en ejecución. Falla con
	// ProvisioningError si no hay ningún worker corriendo.
	RunningInstances() (broker *domain.Instance, workers []*domain.Instance, err error)
}
