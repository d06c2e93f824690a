package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"dev.csaopt.io/csaopt/internal/config"
	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/domain/job"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

// Context agrupa las dependencias compartidas de una ejecución.
type Context struct {
	Printer ports.Printer
	Config  *config.Config
	Logger  ports.Logger
}

// InstanceManagerFactory construye el gestor de instancias para la
// configuración dada.
type InstanceManagerFactory func(ctx context.Context, cfg *config.Config, logger ports.Logger) (ports.InstanceManager, error)

// BrokerFactory establece la conexión con el broker ya aprovisionado.
type BrokerFactory func(ctx context.Context, host string, port int, password string, queueIDs []string, logger ports.Logger) (ports.Broker, error)

// ModelLoaderFunc carga y valida un modelo desde su descriptor.
type ModelLoaderFunc func(path string) (*domain.Model, error)

// Runner ejecuta el pipeline completo de una optimización: cargar modelos,
// aprovisionar instancias, conectar con el broker, desplegar, ejecutar,
// recoger resultados y elegir el mejor. Cada etapa reporta progreso por el
// Printer y cualquier fallo queda en la lista acumulada de la ejecución.
type Runner struct {
	appCtx     *Context
	store      ports.RunStore
	loadModel  ModelLoaderFunc
	newManager InstanceManagerFactory
	newBroker  BrokerFactory

	models   []*domain.Model
	results  []job.Result
	best     *job.Result
	failures []string
}

// NewRunner construye un Runner con sus fábricas inyectadas.
func NewRunner(appCtx *Context, store ports.RunStore, loadModel ModelLoaderFunc, newManager InstanceManagerFactory, newBroker BrokerFactory) *Runner {
	return &Runner{
		appCtx:     appCtx,
		store:      store,
		loadModel:  loadModel,
		newManager: newManager,
		newBroker:  newBroker,
	}
}

// Failures retorna los fallos acumulados durante la ejecución.
func (r *Runner) Failures() []string {
	return r.failures
}

// Best retorna el mejor resultado, si la ejecución produjo alguno.
func (r *Runner) Best() *job.Result {
	return r.best
}

// Results retorna los resultados recogidos, incluidos los parciales de una
// ejecución que venció su plazo.
func (r *Runner) Results() []job.Result {
	return r.results
}

// Run ejecuta el pipeline de etapas. Pase lo que pase dentro del ámbito de
// las instancias, el teardown corre exactamente una vez; el error retornado
// agrega el fallo de la ejecución y el de la liberación si lo hubo.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now().UTC()
	cfg := r.appCtx.Config
	p := r.appCtx.Printer
	log := r.appCtx.Logger

	p.Stage("Loading models")
	if err := r.loadModels(); err != nil {
		p.Failure()
		r.recordFailure(err)
		return r.finish(started, err)
	}
	p.Success()

	p.Stage(startStageMessage(cfg))
	mgr, err := r.newManager(ctx, cfg, log)
	if err != nil {
		p.Failure()
		r.recordFailure(err)
		return r.finish(started, err)
	}

	runErr := WithInstances(ctx, mgr, func(brokerInst *domain.Instance, workers []*domain.Instance) error {
		p.Success()
		return r.pipeline(ctx, brokerInst, workers)
	})
	if runErr != nil {
		// Si Provision falló, la etapa de arranque sigue abierta.
		p.Failure()
		r.recordFailure(runErr)
	}
	return r.finish(started, runErr)
}

// pipeline corre las etapas que necesitan instancias vivas.
func (r *Runner) pipeline(ctx context.Context, brokerInst *domain.Instance, workers []*domain.Instance) error {
	cfg := r.appCtx.Config
	p := r.appCtx.Printer
	log := r.appCtx.Logger

	queueIDs := domain.QueueIDs(workers)
	if len(queueIDs) == 0 {
		return &domain.ProvisioningError{Op: "collect worker queues", Err: fmt.Errorf("there should be at least one worker running")}
	}

	p.Stage("Waiting for broker to come online")
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.BrokerConnect)
	brk, err := r.newBroker(connectCtx, brokerInst.PublicAddr, brokerInst.Port, brokerInst.Password, queueIDs, log)
	cancel()
	if err != nil {
		p.Failure()
		return err
	}
	defer func() {
		if cerr := brk.Close(); cerr != nil {
			log.Warn("error closing broker connection", "error", cerr)
		}
	}()
	p.Success()

	jm := NewJobManager(brk, r.models, cfg, log)

	p.Stage("Waiting for workers to join")
	joined, err := jm.WaitForWorkerJoin(ctx)
	if err != nil {
		p.Failure()
		return err
	}
	p.Success()
	for _, id := range joined {
		p.Println("Worker " + id + " joined")
	}

	p.Stage("Deploying model")
	if err := jm.DeployModels(ctx); err != nil {
		p.Failure()
		return err
	}
	p.Success()

	p.Stage("Running Simulated Annealing")
	if _, err := jm.Submit(ctx); err != nil {
		p.Failure()
		return err
	}
	p.Success()

	p.Stage("Retrieving results")
	results, err := jm.WaitForResults(ctx)
	r.results = results
	if err != nil {
		p.Failure()
		return err
	}
	p.Success()

	p.Stage("Scanning for best result")
	best, err := jm.BestResult()
	if err != nil {
		p.Failure()
		return err
	}
	r.best = best
	p.Success()
	p.Println(fmt.Sprintf("Evaluated: %v State: %v", best.Value, best.FinalState))

	return nil
}

func (r *Runner) loadModels() error {
	cfg := r.appCtx.Config
	models := make([]*domain.Model, 0, len(cfg.Model.Paths))
	for _, path := range cfg.Model.Paths {
		m, err := r.loadModel(path)
		if err != nil {
			return err
		}
		models = append(models, m)
	}
	r.models = models
	return nil
}

// recordFailure aplana un error posiblemente agregado a la lista de fallos.
func (r *Runner) recordFailure(err error) {
	for _, e := range multierr.Errors(err) {
		r.failures = append(r.failures, e.Error())
	}
}

// finish archiva el registro de la ejecución e imprime el resumen final.
func (r *Runner) finish(started time.Time, runErr error) error {
	p := r.appCtx.Printer
	log := r.appCtx.Logger

	names := make([]string, 0, len(r.models))
	for _, m := range r.models {
		names = append(names, m.Name)
	}

	record := &domain.RunRecord{
		ID:         uuid.NewString(),
		Models:     names,
		JobCount:   len(r.results),
		Failures:   append([]string(nil), r.failures...),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if r.best != nil {
		value := r.best.Value
		record.BestValue = &value
		record.BestState = append([]float64(nil), r.best.FinalState...)
	}
	if err := r.store.Save(record); err != nil {
		// El archivo del histórico nunca hace fallar la ejecución.
		log.Error("could not archive run record", "run_id", record.ID, "error", err)
	}

	if len(r.failures) > 0 {
		p.Println("It seems there have been errors.")
		for _, f := range r.failures {
			p.Println("  - " + f)
		}
		if completed := countCompleted(r.results); completed > 0 {
			p.Println(fmt.Sprintf("Collected %d partial result(s) before the failure", completed))
		}
	} else {
		p.Println("All done.")
	}
	return runErr
}

func countCompleted(results []job.Result) int {
	n := 0
	for _, res := range results {
		if res.State == job.Completed {
			n++
		}
	}
	return n
}

func startStageMessage(cfg *config.Config) string {
	if cfg.Cloud.Disabled {
		return "Starting local instances with docker"
	}
	return "Starting instances on " + strings.ToUpper(cfg.Cloud.Platform)
}
