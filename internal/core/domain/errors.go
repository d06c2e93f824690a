package domain

import (
	"fmt"
	"strings"
)

// ConfigError indica una configuración ausente o no reconocida. No se
// reintenta nunca.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Reason
}

// ProvisioningError indica un fallo creando o destruyendo instancias.
type ProvisioningError struct {
	Op  string
	Err error
}

func (e *ProvisioningError) Error() string {
	if e.Err == nil {
		return "provisioning error: " + e.Op
	}
	return fmt.Sprintf("provisioning error: %s: %v", e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// ConnectError indica que el broker no respondió dentro del plazo acotado.
// Fatal para la ejecución; no hay política de reintento.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return "broker did not come online at " + e.Endpoint
	}
	return fmt.Sprintf("broker did not come online at %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ValidationError indica que a un modelo le faltan slots obligatorios. Se
// detecta antes de cualquier llamada de red.
type ValidationError struct {
	Model   string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model %q is missing required entries: %s", e.Model, strings.Join(e.Missing, ", "))
}

// DeploymentError indica que el modelo no llegó a los workers. Fatal: no hay
// reintento por worker en este diseño.
type DeploymentError struct {
	Model string
	Err   error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment of model %q failed: %v", e.Model, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }

// SubmissionError indica un fallo al encolar un job en un worker.
type SubmissionError struct {
	QueueID string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.QueueID == "" {
		return fmt.Sprintf("job submission failed: %v", e.Err)
	}
	return fmt.Sprintf("job submission to queue %s failed: %v", e.QueueID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ResultTimeoutError indica jobs sin resolver al vencer el plazo de
// recolección. Los resultados parciales recogidos antes del plazo se
// conservan junto a este error.
type ResultTimeoutError struct {
	Pending int
}

func (e *ResultTimeoutError) Error() string {
	return fmt.Sprintf("%d job(s) unresolved after the collection deadline", e.Pending)
}
