package broker

import (
	"context"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/domain/job"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

const (
	pingRetryInterval = 500 * time.Millisecond
	joinPollInterval  = 250 * time.Millisecond

	// maxBlock acota cada BLPOP cuando el contexto del llamante no trae
	// deadline propio: una espera en el broker nunca es indefinida.
	maxBlock = 30 * time.Second
)

// RedisBroker implementa ports.Broker sobre una instancia redis protegida por
// contraseña: la misma cola de mensajes que arranca la imagen del broker.
type RedisBroker struct {
	client   *redis.Client
	queueIDs []string
	joined   []string
	logger   ports.Logger
}

// Connect establece el rendezvous con el broker. Hace PING en bucle hasta que
// responde o el contexto del llamante vence; exceder ese plazo es un
// ConnectError fatal, sin política de reintento adicional.
func Connect(ctx context.Context, host string, port int, password string, queueIDs []string, logger ports.Logger) (*RedisBroker, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	var lastErr error
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			break
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, &domain.ConnectError{Endpoint: addr, Err: lastErr}
		case <-time.After(pingRetryInterval):
		}
	}

	logger.Info("broker online", "addr", addr, "known_queues", len(queueIDs))
	return &RedisBroker{
		client:   client,
		queueIDs: append([]string(nil), queueIDs...),
		logger:   logger.With("component", "broker"),
	}, nil
}

// Workers retorna los identificadores de cola conocidos en la construcción.
func (b *RedisBroker) Workers() []string {
	return append([]string(nil), b.queueIDs...)
}

// AwaitWorkerJoin sondea el registro de workers hasta que todos los esperados
// reportan, o hasta vencer el plazo. Retorna los que reportaron, en orden de
// incorporación.
func (b *RedisBroker) AwaitWorkerJoin(ctx context.Context, timeout time.Duration) ([]string, error) {
	known := make(map[string]bool, len(b.queueIDs))
	for _, id := range b.queueIDs {
		known[id] = true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(joinPollInterval)
	defer ticker.Stop()

	for {
		entries, err := b.client.HGetAll(ctx, workersKey).Result()
		if err != nil {
			return nil, errors.Wrap(err, "could not read worker registry")
		}

		type joined struct {
			id string
			ts int64
		}
		var reported []joined
		for id, raw := range entries {
			if !known[id] {
				continue
			}
			ts, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				b.logger.Warn("worker registry entry has invalid timestamp", "queue_id", id, "value", raw)
				continue
			}
			reported = append(reported, joined{id: id, ts: ts})
		}
		sort.Slice(reported, func(i, j int) bool { return reported[i].ts < reported[j].ts })

		ids := make([]string, len(reported))
		for i, r := range reported {
			ids[i] = r.id
		}
		if len(ids) == len(b.queueIDs) {
			b.joined = ids
			return ids, nil
		}

		select {
		case <-deadline.C:
			// Los workers que no reportaron dentro de la ventana quedan
			// fuera: el resto del protocolo sólo habla con los incorporados.
			b.joined = ids
			return ids, nil
		case <-ctx.Done():
			b.joined = ids
			return ids, ctx.Err()
		case <-ticker.C:
		}
	}
}

// targets retorna las colas a las que se habla: los workers incorporados, o
// el conjunto completo si aún no hubo join.
func (b *RedisBroker) targets() []string {
	if len(b.joined) > 0 {
		return b.joined
	}
	return b.queueIDs
}

// Deploy serializa el modelo, lo reparte a cada worker incorporado y espera
// el acuse de cada uno. Cualquier fallo es fatal para la ejecución.
func (b *RedisBroker) Deploy(ctx context.Context, m *domain.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := encodeModel(m)
	if err != nil {
		return &domain.DeploymentError{Model: m.Name, Err: err}
	}

	targets := b.targets()
	for _, q := range targets {
		if err := b.client.LPush(ctx, modelKey(q), payload).Err(); err != nil {
			return &domain.DeploymentError{Model: m.Name, Err: errors.Wrapf(err, "push to queue %s", q)}
		}
	}

	for _, q := range targets {
		res, err := b.client.BLPop(ctx, blockFor(ctx), ackKey(q)).Result()
		if err != nil {
			return &domain.DeploymentError{Model: m.Name, Err: errors.Wrapf(err, "no deployment ack from worker %s", q)}
		}
		if len(res) < 2 || res[1] != ackOK {
			return &domain.DeploymentError{Model: m.Name, Err: errors.Errorf("worker %s rejected deployment: %s", q, res[len(res)-1])}
		}
		b.logger.Debug("deployment acked", "queue_id", q, "model", m.Name)
	}
	return nil
}

// Submit encola el descriptor del job en la cola de su worker y retorna el
// handle sin esperar a que termine.
func (b *RedisBroker) Submit(ctx context.Context, j *job.Job) (job.Handle, error) {
	payload, err := encodeJob(j)
	if err != nil {
		return job.Handle{}, &domain.SubmissionError{QueueID: j.Spec.QueueID, Err: err}
	}
	if err := b.client.LPush(ctx, jobsKey(j.Spec.QueueID), payload).Err(); err != nil {
		return job.Handle{}, &domain.SubmissionError{QueueID: j.Spec.QueueID, Err: err}
	}
	return job.Handle{JobID: j.ID, QueueID: j.Spec.QueueID}, nil
}

// AwaitResults bloquea hasta resolver todos los handles o vencer el plazo.
// Los resueltos se retornan siempre; los pendientes al vencer se marcan
// TimedOut y se reporta un ResultTimeoutError junto a los parciales.
func (b *RedisBroker) AwaitResults(ctx context.Context, handles []job.Handle, timeout time.Duration) ([]job.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]job.Result, 0, len(handles))
	pending := 0
	var collectErr error

	for _, h := range handles {
		res, err := b.client.BLPop(cctx, blockFor(cctx), resultsKey(h.JobID.String())).Result()
		if err != nil {
			// Un plazo vencido no es lo mismo que un broker caído: el
			// primero deja el job TimedOut, el segundo lo marca Failed.
			if resultTimedOut(err) {
				results = append(results, job.Result{
					JobID:   h.JobID,
					QueueID: h.QueueID,
					State:   job.TimedOut,
				})
				pending++
				continue
			}
			b.logger.Warn("result collection failed", "job_id", h.JobID, "queue_id", h.QueueID, "error", err)
			results = append(results, job.Result{
				JobID:       h.JobID,
				QueueID:     h.QueueID,
				State:       job.Failed,
				CompletedAt: time.Now().UTC(),
			})
			collectErr = multierr.Append(collectErr, errors.Wrapf(err, "collect result for job %s", h.JobID))
			continue
		}

		rp, derr := decodeResult(res[1])
		if derr != nil || rp.Failed {
			msg := rp.Message
			if derr != nil {
				msg = derr.Error()
			}
			b.logger.Warn("job failed on worker", "job_id", h.JobID, "queue_id", h.QueueID, "message", msg)
			results = append(results, job.Result{
				JobID:       h.JobID,
				QueueID:     h.QueueID,
				State:       job.Failed,
				CompletedAt: time.Now().UTC(),
			})
			continue
		}

		results = append(results, job.Result{
			JobID:       h.JobID,
			QueueID:     h.QueueID,
			State:       job.Completed,
			Value:       rp.Value,
			FinalState:  rp.State,
			CompletedAt: time.Now().UTC(),
		})
	}

	if pending > 0 {
		return results, &domain.ResultTimeoutError{Pending: pending}
	}
	if collectErr != nil {
		return results, collectErr
	}
	return results, nil
}

// resultTimedOut distingue el vencimiento del plazo de recolección de un
// fallo de transporte con el broker.
func resultTimedOut(err error) bool {
	return errors.Is(err, redis.Nil) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Close libera la conexión con el broker.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// blockFor calcula cuánto puede bloquear un BLPOP sin sobrepasar el deadline
// del contexto. Sin deadline la espera se acota igualmente: cero haría al
// servidor bloquear de forma indefinida.
func blockFor(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return maxBlock
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		return time.Millisecond
	}
	return remaining
}
