package usecase

import (
	"context"

	"github.com/golang-collections/collections/queue"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"dev.csaopt.io/csaopt/internal/config"
	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/domain/job"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

// JobManager es dueño del ciclo de vida de los jobs: esperar a que los
// workers se incorporen, desplegar los modelos, enviar los jobs, recoger los
// resultados y elegir el mejor.
type JobManager struct {
	broker ports.Broker
	models []*domain.Model
	cfg    *config.Config
	logger ports.Logger

	pending  *queue.Queue
	jobs     map[uuid.UUID]*job.Job
	handles  []job.Handle
	results  []job.Result
	joined   []string
	deployed bool
}

// NewJobManager crea el JobManager para una ejecución.
func NewJobManager(broker ports.Broker, models []*domain.Model, cfg *config.Config, logger ports.Logger) *JobManager {
	return &JobManager{
		broker:  broker,
		models:  models,
		cfg:     cfg,
		logger:  logger.With("component", "jobmanager"),
		pending: queue.New(),
		jobs:    make(map[uuid.UUID]*job.Job),
	}
}

// WaitForWorkerJoin suspende hasta que el número esperado de workers reporta
// estar listo, o hasta vencer el plazo. Retorna los identificadores en orden
// de incorporación; cero workers incorporados es un fallo inmediato.
func (jm *JobManager) WaitForWorkerJoin(ctx context.Context) ([]string, error) {
	joined, err := jm.broker.AwaitWorkerJoin(ctx, jm.cfg.Timeouts.WorkerJoin)
	if err != nil {
		return nil, err
	}
	if len(joined) == 0 {
		return nil, errors.Errorf("no worker joined within %s", jm.cfg.Timeouts.WorkerJoin)
	}
	jm.joined = joined
	jm.logger.Info("workers joined", "count", len(joined))
	return joined, nil
}

// DeployModels valida y despliega cada modelo cargado. Un slot ausente es un
// ValidationError detectado antes de cualquier llamada de red; un error de
// despliegue es fatal para toda la ejecución.
func (jm *JobManager) DeployModels(ctx context.Context) error {
	if len(jm.joined) == 0 {
		return errors.New("workers must join before deploying models")
	}

	for _, m := range jm.models {
		if err := m.Validate(); err != nil {
			return err
		}
		if err := jm.deployOne(ctx, m); err != nil {
			return err
		}
		jm.logger.Info("model deployed", "model", m.Name, "workers", len(jm.joined))
	}
	jm.deployed = true
	return nil
}

// deployOne despliega un modelo bajo el plazo de despliegue de la ejecución:
// un worker que nunca acusa recibo hace fallar la ejecución, no la cuelga.
func (jm *JobManager) deployOne(ctx context.Context, m *domain.Model) error {
	if jm.cfg.Timeouts.Deploy > 0 {
		dctx, cancel := context.WithTimeout(ctx, jm.cfg.Timeouts.Deploy)
		defer cancel()
		ctx = dctx
	}
	if err := jm.broker.Deploy(ctx, m); err != nil {
		if _, ok := err.(*domain.DeploymentError); ok {
			return err
		}
		return &domain.DeploymentError{Model: m.Name, Err: err}
	}
	return nil
}

// Submit construye y envía los jobs según la política de ejecución, sin
// esperar a que terminen. Un job sólo puede enviarse con su modelo ya
// desplegado y acusado.
func (jm *JobManager) Submit(ctx context.Context) ([]job.Handle, error) {
	if !jm.deployed {
		return nil, &domain.SubmissionError{Err: errors.New("models must be deployed before submitting jobs")}
	}

	execution := job.ExecutionType(jm.cfg.Execution.Type)
	for _, m := range jm.models {
		switch execution {
		case job.Sweep:
			// Las variantes de parámetros se reparten entre los workers en
			// round-robin.
			for i, params := range jm.cfg.Execution.Sweep {
				queueID := jm.joined[i%len(jm.joined)]
				jm.pending.Enqueue(job.New(m.Name, queueID, execution, params))
			}
		default:
			// Réplicas idénticas: el mismo modelo corre de forma
			// independiente en cada worker.
			for _, queueID := range jm.joined {
				jm.pending.Enqueue(job.New(m.Name, queueID, execution, nil))
			}
		}
	}

	handles := make([]job.Handle, 0, jm.pending.Len())
	for jm.pending.Len() > 0 {
		j := jm.pending.Dequeue().(*job.Job)
		if err := j.Transition(job.Deployed, "model acknowledged"); err != nil {
			return handles, &domain.SubmissionError{QueueID: j.Spec.QueueID, Err: err}
		}

		h, err := jm.broker.Submit(ctx, j)
		if err != nil {
			_ = j.Transition(job.Failed, err.Error())
			return handles, err
		}
		_ = j.Transition(job.Submitted, "")
		jm.jobs[j.ID] = j
		handles = append(handles, h)
	}

	jm.handles = handles
	jm.logger.Info("jobs submitted", "count", len(handles))
	return handles, nil
}

// WaitForResults delega en el broker bajo el plazo de recolección de la
// ejecución. Los resultados parciales recogidos antes de un timeout se
// conservan siempre.
func (jm *JobManager) WaitForResults(ctx context.Context) ([]job.Result, error) {
	for _, j := range jm.jobs {
		if j.Status.State == job.Submitted {
			_ = j.Transition(job.Running, "")
		}
	}

	results, err := jm.broker.AwaitResults(ctx, jm.handles, jm.cfg.Timeouts.Results)
	for i := range results {
		res := &results[i]
		if j, ok := jm.jobs[res.JobID]; ok {
			res.ModelName = j.Spec.ModelName
			if !j.Status.State.Terminal() {
				_ = j.Transition(res.State, "")
			}
		}
	}
	jm.results = results
	return results, err
}

// Results retorna los resultados recogidos hasta el momento.
func (jm *JobManager) Results() []job.Result {
	return jm.results
}

// BestResult elige, entre los jobs Completed, el de valor extremo según la
// dirección de optimización declarada por el modelo (minimización por
// defecto). Los empates los resuelve el orden de finalización.
func (jm *JobManager) BestResult() (*job.Result, error) {
	objectives := make(map[string]domain.Objective, len(jm.models))
	for _, m := range jm.models {
		objectives[m.Name] = m.Objective
	}

	var best *job.Result
	for i := range jm.results {
		res := &jm.results[i]
		if res.State != job.Completed {
			continue
		}
		if best == nil {
			best = res
			continue
		}
		if objectives[res.ModelName] == domain.Maximize {
			if res.Value > best.Value {
				best = res
			}
		} else if res.Value < best.Value {
			best = res
		}
	}

	if best == nil {
		return nil, errors.New("no completed jobs to scan for a best result")
	}
	return best, nil
}
