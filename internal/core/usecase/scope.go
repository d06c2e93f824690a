package usecase

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

// WithInstances usa el InstanceManager como recurso con ámbito: aprovisiona,
// obtiene las instancias en ejecución y corre fn con ellas, garantizando
// exactamente un Teardown en toda salida, incluida una salida por pánico
// dentro del cuerpo. Si Provision falla no hay nada que liberar: el backend
// ya limpió lo parcial.
func WithInstances(ctx context.Context, mgr ports.InstanceManager, fn func(broker *domain.Instance, workers []*domain.Instance) error) (err error) {
	if _, _, err = mgr.Provision(ctx); err != nil {
		return err
	}

	defer func() {
		// El teardown corre aunque el contexto de la ejecución ya esté
		// cancelado.
		if terr := mgr.Teardown(context.WithoutCancel(ctx)); terr != nil {
			err = multierr.Append(err, terr)
		}
	}()

	var broker *domain.Instance
	var workers []*domain.Instance
	if broker, workers, err = mgr.RunningInstances(); err != nil {
		return err
	}

	err = func() (ferr error) {
		defer func() {
			if rec := recover(); rec != nil {
				ferr = errors.Errorf("panic during orchestration: %v", rec)
			}
		}()
		return fn(broker, workers)
	}()
	return err
}
