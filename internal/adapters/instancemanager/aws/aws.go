package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"dev.csaopt.io/csaopt/internal/common"
	"dev.csaopt.io/csaopt/internal/config"
	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

const securityGroupPrefix = "csaopt_"

// Manager implementa ports.InstanceManager sobre EC2: lanza el broker y los
// workers desde imágenes de plantilla dentro de un security group efímero que
// sólo admite la dirección del operador.
type Manager struct {
	ec2    *ec2.Client
	cfg    *config.Config
	logger ports.Logger

	brokerPort     int
	brokerPassword string

	mu          sync.Mutex
	secGroupID  string
	brokerEC2ID string
	workerIDs   []string
	broker      *domain.Instance
	workers     []*domain.Instance
	tornDown    bool
}

// New crea el manager EC2. Si la configuración no trae credenciales, el SDK
// las busca en el entorno, igual que hacía boto con AWS_ACCESS_KEY_ID y
// AWS_SECRET_ACCESS_KEY.
func New(ctx context.Context, cfg *config.Config, logger ports.Logger) (*Manager, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Cloud.AWS.Region),
	}
	if cfg.Cloud.AWS.AccessKey != "" && cfg.Cloud.AWS.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Cloud.AWS.AccessKey, cfg.Cloud.AWS.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws configuration")
	}

	return &Manager{
		ec2:            ec2.NewFromConfig(awsCfg),
		cfg:            cfg,
		logger:         logger.With("component", "aws_instances"),
		brokerPort:     common.RandomBrokerPort(),
		brokerPassword: common.RandomString(32),
	}, nil
}

// Provision crea el security group y lanza las instancias del broker y de
// los workers, bloqueando hasta que EC2 las reporta en ejecución. Ante un
// fallo parcial destruye lo ya creado antes de propagar el error.
func (m *Manager) Provision(ctx context.Context) (*domain.Instance, []*domain.Instance, error) {
	ownIP, err := common.OwnExternalIP(ctx)
	if err != nil {
		return nil, nil, &domain.ProvisioningError{Op: "resolve operator address", Err: err}
	}

	if err := m.createSecurityGroup(ctx, ownIP); err != nil {
		return nil, nil, &domain.ProvisioningError{Op: "create security group", Err: err}
	}
	if err := m.launchBroker(ctx); err != nil {
		m.cleanupPartial(ctx)
		return nil, nil, &domain.ProvisioningError{Op: "launch broker instance", Err: err}
	}
	// Los workers reciben la dirección del broker por user data, así que el
	// broker tiene que estar corriendo y con IP pública antes de lanzarlos.
	if err := m.resolveBroker(ctx); err != nil {
		m.cleanupPartial(ctx)
		return nil, nil, &domain.ProvisioningError{Op: "wait for broker instance", Err: err}
	}
	queueIDs, err := m.launchWorkers(ctx, m.cfg.Cloud.WorkerCount)
	if err != nil {
		m.cleanupPartial(ctx)
		return nil, nil, &domain.ProvisioningError{Op: "launch worker instances", Err: err}
	}
	if err := m.resolveWorkers(ctx, queueIDs); err != nil {
		m.cleanupPartial(ctx)
		return nil, nil, &domain.ProvisioningError{Op: "wait for worker instances", Err: err}
	}

	m.logger.Info("ec2 instances are up",
		"security_group", m.secGroupID,
		"broker", m.brokerEC2ID,
		"workers", len(m.workerIDs))
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

// Teardown termina las instancias y elimina el security group. Idempotente.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tornDown {
		return nil
	}
	m.tornDown = true

	var errs error

	ids := append([]string(nil), m.workerIDs...)
	if m.brokerEC2ID != "" {
		ids = append(ids, m.brokerEC2ID)
	}
	if len(ids) > 0 {
		if _, err := m.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
			m.logger.Error("failed to terminate instances", "error", err)
			errs = multierr.Append(errs, err)
		} else {
			waiter := ec2.NewInstanceTerminatedWaiter(m.ec2)
			if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids}, m.cfg.Timeouts.Provision); err != nil {
				m.logger.Error("instances did not reach terminated state", "error", err)
				errs = multierr.Append(errs, err)
			}
		}
	}

	// El security group sólo puede borrarse cuando las instancias han salido.
	if m.secGroupID != "" {
		if _, err := m.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(m.secGroupID)}); err != nil {
			m.logger.Error("could not remove security group", "group_id", m.secGroupID, "error", err)
			errs = multierr.Append(errs, err)
		} else {
			m.logger.Debug("security group deleted", "group_id", m.secGroupID)
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

func (m *Manager) createSecurityGroup(ctx context.Context, ownIP string) error {
	name := securityGroupPrefix + common.RandomString(10)
	created, err := m.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("Security group for a CSAOpt run"),
	})
	if err != nil {
		return errors.Wrap(err, "could not create security group")
	}
	m.secGroupID = aws.ToString(created.GroupId)

	_, err = m.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: created.GroupId,
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(int32(m.brokerPort)),
				ToPort:     aws.Int32(int32(m.brokerPort)),
				IpRanges: []ec2types.IpRange{
					{CidrIp: aws.String(ownIP + "/32")},
				},
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "could not authorize security group ingress")
	}

	m.logger.Debug("security group ingress authorized", "group_id", m.secGroupID, "cidr", ownIP+"/32")
	return nil
}

func (m *Manager) launchBroker(ctx context.Context) error {
	out, err := m.ec2.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:          aws.String(m.cfg.Cloud.AWS.BrokerAMI),
		InstanceType:     ec2types.InstanceType(m.cfg.Cloud.AWS.BrokerInstanceType),
		MinCount:         aws.Int32(1),
		MaxCount:         aws.Int32(1),
		SecurityGroupIds: []string{m.secGroupID},
		UserData:         aws.String(encodeUserData(m.brokerUserData())),
	})
	if err != nil {
		return errors.Wrap(err, "could not launch broker instance")
	}
	if len(out.Instances) == 0 {
		return errors.New("ec2 returned no broker instance")
	}
	m.brokerEC2ID = aws.ToString(out.Instances[0].InstanceId)
	return nil
}

// resolveBroker espera a que la instancia del broker corre y materializa su
// dirección pública.
func (m *Manager) resolveBroker(ctx context.Context) error {
	addrs, err := m.awaitAddresses(ctx, []string{m.brokerEC2ID})
	if err != nil {
		return err
	}
	brokerAddr := addrs[m.brokerEC2ID]
	if brokerAddr == "" {
		return errors.New("broker instance has no public address")
	}
	m.broker = domain.NewBrokerInstance(m.brokerEC2ID, brokerAddr, m.brokerPort, m.brokerPassword)
	return nil
}

// launchWorkers lanza los workers de uno en uno: cada instancia recibe su
// identificador de cola y las credenciales del broker por user data.
func (m *Manager) launchWorkers(ctx context.Context, count int) ([]string, error) {
	queueIDs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		queueID := uuid.NewString()
		out, err := m.ec2.RunInstances(ctx, &ec2.RunInstancesInput{
			ImageId:          aws.String(m.cfg.Cloud.AWS.WorkerAMI),
			InstanceType:     ec2types.InstanceType(m.cfg.Cloud.AWS.WorkerInstanceType),
			MinCount:         aws.Int32(1),
			MaxCount:         aws.Int32(1),
			SecurityGroupIds: []string{m.secGroupID},
			UserData:         aws.String(encodeUserData(m.workerUserData(queueID))),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "could not launch worker instance %d", i)
		}
		if len(out.Instances) == 0 {
			return nil, errors.Errorf("ec2 returned no instance for worker %d", i)
		}
		m.workerIDs = append(m.workerIDs, aws.ToString(out.Instances[0].InstanceId))
		queueIDs = append(queueIDs, queueID)
	}
	return queueIDs, nil
}

func (m *Manager) resolveWorkers(ctx context.Context, queueIDs []string) error {
	addrs, err := m.awaitAddresses(ctx, m.workerIDs)
	if err != nil {
		return err
	}
	m.workers = m.workers[:0]
	for i, id := range m.workerIDs {
		m.workers = append(m.workers, domain.NewWorkerInstance(id, addrs[id], queueIDs[i]))
	}
	return nil
}

// awaitAddresses bloquea hasta que las instancias corren y retorna sus
// direcciones públicas indexadas por id de instancia.
func (m *Manager) awaitAddresses(ctx context.Context, ids []string) (map[string]string, error) {
	waiter := ec2.NewInstanceRunningWaiter(m.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids}, m.cfg.Timeouts.Provision); err != nil {
		return nil, errors.Wrap(err, "instances did not reach running state")
	}

	out, err := m.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids})
	if err != nil {
		return nil, errors.Wrap(err, "could not describe instances")
	}
	addrs := make(map[string]string, len(ids))
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			addrs[aws.ToString(inst.InstanceId)] = aws.ToString(inst.PublicIpAddress)
		}
	}
	return addrs, nil
}

// brokerUserData arranca la cola de mensajes con el puerto y la contraseña
// generados para esta ejecución.
func (m *Manager) brokerUserData() string {
	return fmt.Sprintf(`#!/bin/bash
set -e
docker run -d --name csaopt-broker -p %[1]d:%[1]d redis:7-alpine \
  redis-server --port %[1]d --requirepass %[2]s
`, m.brokerPort, m.brokerPassword)
}

func (m *Manager) workerUserData(queueID string) string {
	return fmt.Sprintf(`#!/bin/bash
set -e
export CSAOPT_BROKER_HOST=%s
export CSAOPT_BROKER_PORT=%s
export CSAOPT_BROKER_PASSWORD=%s
export CSAOPT_QUEUE_ID=%s
/opt/csaopt/start-worker.sh
`, m.broker.PublicAddr, strconv.Itoa(m.brokerPort), m.brokerPassword, queueID)
}

func encodeUserData(script string) string {
	return base64.StdEncoding.EncodeToString([]byte(script))
}
