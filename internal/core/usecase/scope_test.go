package usecase

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"dev.csaopt.io/csaopt/internal/core/domain"
)

// fakeInstanceManager implementa ports.InstanceManager contando los teardowns.
type fakeInstanceManager struct {
	broker  *domain.Instance
	workers []*domain.Instance

	provisionErr error
	runningErr   error
	teardownErr  error
	teardowns    int
}

func newFakeInstanceManager(workerCount int) *fakeInstanceManager {
	workers := make([]*domain.Instance, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		id := string(rune('a' + i))
		workers = append(workers, domain.NewWorkerInstance("worker-"+id, "127.0.0.1", "q"+id))
	}
	return &fakeInstanceManager{
		broker:  domain.NewBrokerInstance("broker-1", "127.0.0.1", 55000, "secret"),
		workers: workers,
	}
}

func (m *fakeInstanceManager) Provision(ctx context.Context) (*domain.Instance, []*domain.Instance, error) {
	if m.provisionErr != nil {
		return nil, nil, m.provisionErr
	}
	return m.broker, m.workers, nil
}

func (m *fakeInstanceManager) Teardown(ctx context.Context) error {
	m.teardowns++
	return m.teardownErr
}

func (m *fakeInstanceManager) RunningInstances() (*domain.Instance, []*domain.Instance, error) {
	if m.runningErr != nil {
		return nil, nil, m.runningErr
	}
	return m.broker, m.workers, nil
}

func TestWithInstancesTearsDownOnSuccess(t *testing.T) {
	mgr := newFakeInstanceManager(2)

	err := WithInstances(context.Background(), mgr, func(broker *domain.Instance, workers []*domain.Instance) error {
		require.Equal(t, "broker-1", broker.ID)
		require.Len(t, workers, 2)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, mgr.teardowns)
}

func TestWithInstancesTearsDownOnBodyError(t *testing.T) {
	mgr := newFakeInstanceManager(1)
	bodyErr := errors.New("deploy failed")

	err := WithInstances(context.Background(), mgr, func(*domain.Instance, []*domain.Instance) error {
		return bodyErr
	})
	require.ErrorIs(t, err, bodyErr)
	require.Equal(t, 1, mgr.teardowns)
}

func TestWithInstancesSkipsTeardownWhenProvisionFails(t *testing.T) {
	mgr := newFakeInstanceManager(1)
	mgr.provisionErr = &domain.ProvisioningError{Op: "run instances", Err: errors.New("quota exceeded")}

	err := WithInstances(context.Background(), mgr, func(*domain.Instance, []*domain.Instance) error {
		t.Fatal("body must not run when provisioning fails")
		return nil
	})
	require.Error(t, err)
	require.Equal(t, 0, mgr.teardowns, "provision cleans up after itself")
}

func TestWithInstancesTearsDownWhenNoWorkerIsRunning(t *testing.T) {
	mgr := newFakeInstanceManager(1)
	mgr.runningErr = &domain.ProvisioningError{Op: "get running instances", Err: errors.New("no worker is currently running")}

	err := WithInstances(context.Background(), mgr, func(*domain.Instance, []*domain.Instance) error {
		t.Fatal("body must not run without running instances")
		return nil
	})
	require.Error(t, err)
	_, ok := err.(*domain.ProvisioningError)
	require.True(t, ok, "expected *ProvisioningError, got %T", err)
	require.Equal(t, 1, mgr.teardowns, "provisioned resources must still be released")
}

func TestWithInstancesAggregatesTeardownError(t *testing.T) {
	mgr := newFakeInstanceManager(1)
	mgr.teardownErr = errors.New("instance already gone")
	bodyErr := errors.New("submit failed")

	err := WithInstances(context.Background(), mgr, func(*domain.Instance, []*domain.Instance) error {
		return bodyErr
	})
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Equal(t, 1, mgr.teardowns)
}

func TestWithInstancesRecoversPanicAndTearsDown(t *testing.T) {
	mgr := newFakeInstanceManager(1)

	err := WithInstances(context.Background(), mgr, func(*domain.Instance, []*domain.Instance) error {
		panic("boom")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, 1, mgr.teardowns)
}

func TestWithInstancesTearsDownDespiteCancelledContext(t *testing.T) {
	mgr := newFakeInstanceManager(1)
	ctx, cancel := context.WithCancel(context.Background())

	err := WithInstances(ctx, mgr, func(*domain.Instance, []*domain.Instance) error {
		cancel()
		return ctx.Err()
	})
	require.Error(t, err)
	require.Equal(t, 1, mgr.teardowns)
}
