package domain

import "time"

// RunRecord es el resumen persistente de una ejecución completa de
// optimización: mejor resultado encontrado y fallos acumulados.
type RunRecord struct {
	ID         string    `json:"id"`
	Models     []string  `json:"models"`
	JobCount   int       `json:"job_count"`
	BestValue  *float64  `json:"best_value,omitempty"`
	BestState  []float64 `json:"best_state,omitempty"`
	Failures   []string  `json:"failures,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded indica si la ejecución terminó sin fallos registrados.
func (r *RunRecord) Succeeded() bool {
	return len(r.Failures) == 0
}

// Duration retorna la duración total de la ejecución.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
