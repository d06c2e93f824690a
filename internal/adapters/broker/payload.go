package broker

import (
	"encoding/json"

	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/domain/job"
)

// Claves del protocolo sobre redis. Los workers conocen las mismas claves a
// través de su imagen.
const (
	workersKey       = "csaopt:workers"
	modelKeyPrefix   = "csaopt:model:"
	ackKeyPrefix     = "csaopt:ack:"
	jobsKeyPrefix    = "csaopt:jobs:"
	resultsKeyPrefix = "csaopt:results:"

	ackOK = "ok"
)

func modelKey(queueID string) string { return modelKeyPrefix + queueID }
func ackKey(queueID string) string   { return ackKeyPrefix + queueID }
func jobsKey(queueID string) string  { return jobsKeyPrefix + queueID }
func resultsKey(jobID string) string { return resultsKeyPrefix + jobID }

// jobPayload es la forma en cable de un descriptor de job.
type jobPayload struct {
	JobID     string             `json:"job_id"`
	ModelName string             `json:"model_name"`
	Execution string             `json:"execution"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// resultPayload es la forma en cable del desenlace que reporta un worker.
type resultPayload struct {
	Value   float64   `json:"value"`
	State   []float64 `json:"state,omitempty"`
	Failed  bool      `json:"failed,omitempty"`
	Message string    `json:"message,omitempty"`
}

func encodeModel(m *domain.Model) ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func encodeJob(j *job.Job) ([]byte, error) {
	return json.Marshal(jobPayload{
		JobID:     j.ID.String(),
		ModelName: j.Spec.ModelName,
		Execution: string(j.Spec.Execution),
		Params:    j.Spec.Params,
	})
}

func decodeResult(raw string) (resultPayload, error) {
	var rp resultPayload
	err := json.Unmarshal([]byte(raw), &rp)
	return rp, err
}
