package local

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"dev.csaopt.io/csaopt/internal/common"
	"dev.csaopt.io/csaopt/internal/config"
	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

const (
	brokerAlias     = "csaopt-broker"
	runLabel        = "io.csaopt.run"
	roleLabel       = "io.csaopt.role"
	runningPollTick = 300 * time.Millisecond
)

// Manager implementa ports.InstanceManager lanzando el broker y los workers
// como contenedores locales. No necesita paso de aislamiento de red más allá
// de la red bridge propia de la ejecución.
type Manager struct {
	cli    *client.Client
	cfg    *config.Config
	logger ports.Logger

	runID          string
	brokerPort     int
	brokerPassword string

	mu           sync.Mutex
	networkID    string
	brokerCtrID  string
	workerCtrIDs []string
	broker       *domain.Instance
	workers      []*domain.Instance
	tornDown     bool
}

// New crea el manager local sobre el docker daemon del entorno.
func New(cfg *config.Config, logger ports.Logger) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}

	return &Manager{
		cli:            cli,
		cfg:            cfg,
		logger:         logger.With("component", "local_instances"),
		runID:          uuid.NewString()[:8],
		brokerPort:     common.RandomBrokerPort(),
		brokerPassword: common.RandomString(32),
	}, nil
}

// Provision crea la red, el contenedor del broker y los contenedores worker,
// y bloquea hasta que todos reportan estar corriendo. Ante un fallo parcial
// destruye lo ya creado antes de propagar el error.
func (m *Manager) Provision(ctx context.Context) (*domain.Instance, []*domain.Instance, error) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Provision)
	defer cancel()

	if err := m.createNetwork(pctx); err != nil {
		return nil, nil, &domain.ProvisioningError{Op: "create network", Err: err}
	}
	if err := m.startBroker(pctx); err != nil {
		m.cleanupPartial(ctx)
		return nil, nil, &domain.ProvisioningError{Op: "start broker container", Err: err}
	}
	if err := m.startWorkers(pctx, m.cfg.Cloud.WorkerCount); err != nil {
		m.cleanupPartial(ctx)
		return nil, nil, &domain.ProvisioningError{Op: "start worker containers", Err: err}
	}

	m.logger.Info("local instances are up",
		"run_id", m.runID,
		"broker_port", m.brokerPort,
		"workers", len(m.workers))
	return m.broker, m.workers, nil
}

// RunningInstances retorna el broker y los workers en ejecución. Falla si no
// hay ningún worker corriendo.
func (m *Manager) RunningInstances() (*domain.Instance, []*domain.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.workers) == 0 {
		return nil, nil, &domain.ProvisioningError{Op: "get running instances", Err: errors.New("no worker is currently running")}
	}
	return m.broker, m.workers, nil
}

// Teardown elimina los contenedores y la red de la ejecución. Idempotente.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tornDown {
		return nil
	}
	m.tornDown = true

	var errs error
	for _, id := range m.workerCtrIDs {
		if err := m.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			m.logger.Error("failed to remove worker container", "container_id", id, "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	if m.brokerCtrID != "" {
		if err := m.cli.ContainerRemove(ctx, m.brokerCtrID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			m.logger.Error("failed to remove broker container", "container_id", m.brokerCtrID, "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	if m.networkID != "" {
		if err := m.cli.NetworkRemove(ctx, m.networkID); err != nil {
			m.logger.Error("failed to remove network", "network_id", m.networkID, "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	m.broker = nil
	m.workers = nil

	if errs != nil {
		return &domain.ProvisioningError{Op: "teardown", Err: errs}
	}
	return nil
}

func (m *Manager) cleanupPartial(ctx context.Context) {
	if err := m.Teardown(ctx); err != nil {
		m.logger.Error("partial cleanup failed", "error", err)
	}
}

func (m *Manager) networkName() string {
	return "csaopt-" + m.runID
}

func (m *Manager) createNetwork(ctx context.Context) error {
	networks, err := m.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to list networks")
	}
	for _, n := range networks {
		if n.Name == m.networkName() {
			m.networkID = n.ID
			return nil
		}
	}

	resp, err := m.cli.NetworkCreate(ctx, m.networkName(), network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{runLabel: m.runID},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create network")
	}
	m.networkID = resp.ID
	return nil
}

func (m *Manager) startBroker(ctx context.Context) error {
	portSpec := nat.Port(fmt.Sprintf("%d/tcp", m.brokerPort))

	cfg := &container.Config{
		Image: m.cfg.Cloud.Local.BrokerImage,
		Cmd: []string{
			"redis-server",
			"--port", strconv.Itoa(m.brokerPort),
			"--requirepass", m.brokerPassword,
		},
		ExposedPorts: nat.PortSet{portSpec: struct{}{}},
		Labels: map[string]string{
			runLabel:  m.runID,
			roleLabel: string(domain.RoleBroker),
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			portSpec: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(m.brokerPort)}},
		},
	}
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			m.networkName(): {
				NetworkID: m.networkID,
				Aliases:   []string{brokerAlias},
			},
		},
	}

	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, "csaopt-broker-"+m.runID)
	if err != nil {
		return errors.Wrap(err, "failed to create broker container")
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return errors.Wrap(err, "failed to start broker container")
	}
	m.brokerCtrID = resp.ID

	if err := m.waitRunning(ctx, resp.ID); err != nil {
		return err
	}

	m.broker = domain.NewBrokerInstance(resp.ID, "127.0.0.1", m.brokerPort, m.brokerPassword)
	m.logger.Info("broker container started", "container_id", resp.ID)
	return nil
}

func (m *Manager) startWorkers(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		queueID := uuid.NewString()

		cfg := &container.Config{
			Image: m.cfg.Cloud.Local.WorkerImage,
			Env: []string{
				"CSAOPT_BROKER_HOST=" + brokerAlias,
				"CSAOPT_BROKER_PORT=" + strconv.Itoa(m.brokerPort),
				"CSAOPT_BROKER_PASSWORD=" + m.brokerPassword,
				"CSAOPT_QUEUE_ID=" + queueID,
			},
			Labels: map[string]string{
				runLabel:  m.runID,
				roleLabel: string(domain.RoleWorker),
			},
		}
		netCfg := &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				m.networkName(): {NetworkID: m.networkID},
			},
		}

		name := fmt.Sprintf("csaopt-worker-%s-%d", m.runID, i)
		resp, err := m.cli.ContainerCreate(ctx, cfg, &container.HostConfig{}, netCfg, nil, name)
		if err != nil {
			return errors.Wrapf(err, "failed to create worker container %d", i)
		}
		if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
			return errors.Wrapf(err, "failed to start worker container %d", i)
		}
		m.workerCtrIDs = append(m.workerCtrIDs, resp.ID)

		if err := m.waitRunning(ctx, resp.ID); err != nil {
			return err
		}
		m.workers = append(m.workers, domain.NewWorkerInstance(resp.ID, name, queueID))
		m.logger.Info("worker container started", "container_id", resp.ID, "queue_id", queueID)
	}
	return nil
}

// waitRunning sondea el estado del contenedor hasta que corre o vence el
// plazo de aprovisionamiento.
func (m *Manager) waitRunning(ctx context.Context, containerID string) error {
	ticker := time.NewTicker(runningPollTick)
	defer ticker.Stop()

	for {
		info, err := m.cli.ContainerInspect(ctx, containerID)
		if err != nil {
			return errors.Wrap(err, "failed to inspect container")
		}
		if info.State != nil {
			if info.State.Running {
				return nil
			}
			if info.State.Dead || info.State.ExitCode != 0 {
				return errors.Errorf("container %s exited prematurely (%s)", containerID, info.State.Status)
			}
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "container %s did not reach running state", containerID)
		case <-ticker.C:
		}
	}
}
