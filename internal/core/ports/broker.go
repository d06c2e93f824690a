package ports

import (
	"context"
	"time"

	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/domain/job"
)

// Broker es el puente de protocolo entre el controlador/JobManager y el pool
// remoto de workers.
type Broker interface {
	// AwaitWorkerJoin suspende hasta que los workers esperados reportan estar
	// listos o vence el plazo. Retorna los identificadores en su orden de
	// incorporación; los workers que nunca reportan quedan excluidos.
	AwaitWorkerJoin(ctx context.Context, timeout time.Duration) ([]string, error)

	// Deploy serializa el modelo y lo distribuye a todos los workers
	// conocidos. Cualquier error de despliegue es fatal para la ejecución.
	Deploy(ctx context.Context, m *domain.Model) error

	// Submit encola un job sin bloquear y retorna inmediatamente un handle
	// opaco.
	Submit(ctx context.Context, j *job.Job) (job.Handle, error)

	// AwaitResults suspende hasta que todos los handles se resuelven o vence
	// el plazo. Los handles sin resolver se marcan TimedOut; los resueltos se
	// retornan junto a ellos.
	AwaitResults(ctx context.Context, handles []job.Handle, timeout time.Duration) ([]job.Result, error)

	// Close libera la conexión con el broker.
	Close() error
}
