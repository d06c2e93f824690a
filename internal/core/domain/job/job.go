package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionType gobierna cómo se reparten los jobs entre los workers.
type ExecutionType string

const (
	// Replica ejecuta el mismo modelo de forma independiente en cada worker,
	// para explorar la varianza estocástica.
	Replica ExecutionType = "replica"
	// Sweep ejecuta el modelo con parámetros variados repartidos entre los
	// workers.
	Sweep ExecutionType = "sweep"
)

// Spec define la especificación de un job: un modelo, un worker destino y la
// política de ejecución.
type Spec struct {
	ModelName string             `json:"model_name"`
	QueueID   string             `json:"queue_id"`
	Execution ExecutionType      `json:"execution"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// Status representa el estado actual de un job.
type Status struct {
	State       State      `json:"state"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// Job representa una ejecución de optimización que vincula un Model a un
// worker concreto bajo una política de ejecución.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Spec      Spec      `json:"spec"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// New crea un job en estado Pending.
func New(modelName, queueID string, execution ExecutionType, params map[string]float64) *Job {
	return &Job{
		ID: uuid.New(),
		Spec: Spec{
			ModelName: modelName,
			QueueID:   queueID,
			Execution: execution,
			Params:    params,
		},
		Status:    Status{State: Pending},
		CreatedAt: time.Now().UTC(),
	}
}

// Transition mueve el job a dst validando contra la máquina de estados.
func (j *Job) Transition(dst State, message string) error {
	if !ValidStateTransition(j.Status.State, dst) {
		return fmt.Errorf("invalid transition from %s to %s for job %s", j.Status.State, dst, j.ID)
	}
	now := time.Now().UTC()
	j.Status.State = dst
	j.Status.Message = message

	switch dst {
	case Submitted:
		if j.Status.SubmittedAt == nil {
			j.Status.SubmittedAt = &now
		}
	case Completed, Failed, TimedOut:
		j.Status.FinishedAt = &now
	}
	return nil
}

// Handle es la referencia opaca a un job ya enviado, suficiente para
// recuperar su resultado en el broker.
type Handle struct {
	JobID   uuid.UUID `json:"job_id"`
	QueueID string    `json:"queue_id"`
}

// Result es el desenlace de un job reportado por un worker.
type Result struct {
	JobID       uuid.UUID `json:"job_id"`
	QueueID     string    `json:"queue_id"`
	ModelName   string    `json:"model_name"`
	State       State     `json:"state"`
	Value       float64   `json:"value"`
	FinalState  []float64 `json:"final_state,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
