package usecase

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"dev.csaopt.io/csaopt/internal/adapters/logger"
	"dev.csaopt.io/csaopt/internal/adapters/store"
	"dev.csaopt.io/csaopt/internal/config"
	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

// fakePrinter registra etapas y líneas sin tocar la consola.
type fakePrinter struct {
	stages []string
	lines  []string
}

func (p *fakePrinter) Println(txt string) { p.lines = append(p.lines, txt) }
func (p *fakePrinter) Stage(txt string)   { p.stages = append(p.stages, txt) }
func (p *fakePrinter) Success()           {}
func (p *fakePrinter) Failure()           {}

type runnerFixture struct {
	runner       *Runner
	printer      *fakePrinter
	manager      *fakeInstanceManager
	broker       *fakeBroker
	store        *store.MemoryRunStore
	managerCalls int
	brokerCalls  int
	loadErr      error
}

func newRunnerFixture(t *testing.T, workerCount int) *runnerFixture {
	t.Helper()

	mgr := newFakeInstanceManager(workerCount)
	brk := &fakeBroker{joined: domain.QueueIDs(mgr.workers)}

	cfg := testConfig()
	cfg.Model.Paths = []string{"rastrigin.yaml"}

	f := &runnerFixture{
		printer: &fakePrinter{},
		manager: mgr,
		broker:  brk,
		store:   store.NewMemoryRunStore(),
	}

	appCtx := &Context{Printer: f.printer, Config: cfg, Logger: logger.NewNop()}
	f.runner = NewRunner(
		appCtx,
		f.store,
		func(path string) (*domain.Model, error) {
			if f.loadErr != nil {
				return nil, f.loadErr
			}
			return testModel("rastrigin", domain.Minimize), nil
		},
		func(ctx context.Context, cfg *config.Config, log ports.Logger) (ports.InstanceManager, error) {
			f.managerCalls++
			return f.manager, nil
		},
		func(ctx context.Context, host string, port int, password string, queueIDs []string, log ports.Logger) (ports.Broker, error) {
			f.brokerCalls++
			require.Equal(t, "127.0.0.1", host)
			require.Equal(t, 55000, port)
			require.Equal(t, "secret", password)
			require.Equal(t, brk.joined, queueIDs)
			return f.broker, nil
		},
	)
	return f
}

func TestRunHappyPath(t *testing.T) {
	f := newRunnerFixture(t, 3)
	f.broker.values = []float64{5, -3, 2}

	err := f.runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, f.manager.teardowns, "teardown must run exactly once")
	require.True(t, f.broker.closed)
	require.Empty(t, f.runner.Failures())

	best := f.runner.Best()
	require.NotNil(t, best)
	require.Equal(t, -3.0, best.Value)
	require.Contains(t, f.printer.lines, "All done.")
	require.Contains(t, f.printer.stages, "Running Simulated Annealing")

	runs, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 3, runs[0].JobCount)
	require.NotNil(t, runs[0].BestValue)
	require.Equal(t, -3.0, *runs[0].BestValue)
	require.True(t, runs[0].Succeeded())
}

func TestRunAnnouncesJoinedWorkers(t *testing.T) {
	f := newRunnerFixture(t, 2)

	require.NoError(t, f.runner.Run(context.Background()))
	require.Contains(t, f.printer.lines, "Worker qa joined")
	require.Contains(t, f.printer.lines, "Worker qb joined")
}

func TestRunDeployFailureStillTearsDown(t *testing.T) {
	f := newRunnerFixture(t, 2)
	f.broker.deployErr = errors.New("worker rejected model")

	err := f.runner.Run(context.Background())
	require.Error(t, err)

	require.Equal(t, 1, f.manager.teardowns)
	require.Empty(t, f.broker.submits, "no job may be submitted after a deploy failure")
	require.NotEmpty(t, f.runner.Failures())
	require.Contains(t, f.printer.lines, "It seems there have been errors.")

	runs, serr := f.store.List()
	require.NoError(t, serr)
	require.Len(t, runs, 1)
	require.False(t, runs[0].Succeeded())
}

func TestRunProvisionFailureSkipsTeardown(t *testing.T) {
	f := newRunnerFixture(t, 1)
	f.manager.provisionErr = &domain.ProvisioningError{Op: "run instances", Err: errors.New("quota exceeded")}

	err := f.runner.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, f.manager.teardowns)
	require.Equal(t, 0, f.brokerCalls)
	require.NotEmpty(t, f.runner.Failures())
}

func TestRunModelLoadFailureAbortsBeforeProvisioning(t *testing.T) {
	f := newRunnerFixture(t, 1)
	f.loadErr = &domain.ValidationError{Model: "rastrigin", Missing: []string{"cool"}}

	err := f.runner.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, f.managerCalls, "no instances may be requested for an invalid model")
	require.Equal(t, 0, f.manager.teardowns)
}

func TestRunResultTimeoutKeepsPartials(t *testing.T) {
	f := newRunnerFixture(t, 3)
	f.broker.values = []float64{9, 1}
	f.broker.timedOut = 1

	err := f.runner.Run(context.Background())
	require.Error(t, err)

	require.Equal(t, 1, f.manager.teardowns)
	require.Len(t, f.runner.Results(), 3)
	require.Contains(t, f.printer.lines, "Collected 2 partial result(s) before the failure")

	runs, serr := f.store.List()
	require.NoError(t, serr)
	require.Len(t, runs, 1)
	require.Equal(t, 3, runs[0].JobCount)
	require.False(t, runs[0].Succeeded())
}
