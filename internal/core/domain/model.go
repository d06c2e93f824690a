package domain

import (
	"encoding/json"
	"fmt"
)

// Precision define la precisión numérica con la que los workers ejecutan el modelo.
type Precision string

const (
	Float32 Precision = "float32"
	Float64 Precision = "float64"
)

// Distribution define la distribución de muestreo aleatorio del modelo.
type Distribution string

const (
	Normal  Distribution = "normal"
	Uniform Distribution = "uniform"
)

// Objective indica la dirección de optimización del modelo.
type Objective string

const (
	Minimize Objective = "minimize"
	Maximize Objective = "maximize"
)

// Slots de función que todo modelo debe aportar antes de poder desplegarse.
const (
	FuncInitialize   = "initialize"
	FuncGenerateNext = "generate_next"
	FuncCool         = "cool"
	FuncEvaluate     = "evaluate"
	FuncAcceptance   = "acceptance_func"
	FuncEmptyState   = "empty_state"
)

// RequiredFunctions retorna los slots de función obligatorios, en orden estable.
func RequiredFunctions() []string {
	return []string{
		FuncInitialize,
		FuncGenerateNext,
		FuncCool,
		FuncEvaluate,
		FuncAcceptance,
		FuncEmptyState,
	}
}

// Model es el kernel de optimización definido por el usuario. Inmutable una
// vez cargado; se carga una vez por ejecución, un Model por fichero de modelo.
type Model struct {
	Name         string            `json:"name" yaml:"name"`
	Dimensions   int               `json:"dimensions" yaml:"dimensions"`
	Precision    Precision         `json:"precision" yaml:"precision"`
	Distribution Distribution      `json:"distribution" yaml:"distribution"`
	Objective    Objective         `json:"objective" yaml:"objective"`
	Globals      string            `json:"globals" yaml:"globals"`
	Functions    map[string]string `json:"functions" yaml:"functions"`
}

// Validate comprueba que el modelo tiene todos los slots obligatorios y una
// configuración coherente. Se ejecuta siempre antes de cualquier interacción
// de red.
func (m *Model) Validate() error {
	var missing []string

	if m.Dimensions <= 0 {
		missing = append(missing, "dimensions")
	}
	if m.Precision != Float32 && m.Precision != Float64 {
		missing = append(missing, "precision")
	}
	if m.Distribution != Normal && m.Distribution != Uniform {
		missing = append(missing, "distribution")
	}
	for _, fn := range RequiredFunctions() {
		if body, ok := m.Functions[fn]; !ok || body == "" {
			missing = append(missing, fn)
		}
	}

	if len(missing) > 0 {
		return &ValidationError{Model: m.Name, Missing: missing}
	}
	return nil
}

// ToMap convierte el modelo a su representación plana clave-valor.
func (m *Model) ToMap() map[string]interface{} {
	functions := make(map[string]string, len(m.Functions))
	for k, v := range m.Functions {
		functions[k] = v
	}
	return map[string]interface{}{
		"name":         m.Name,
		"dimensions":   m.Dimensions,
		"precision":    string(m.Precision),
		"distribution": string(m.Distribution),
		"objective":    string(m.Objective),
		"globals":      m.Globals,
		"functions":    functions,
	}
}

// ModelFromMap reconstruye un Model desde su representación plana. Es la
// inversa de ToMap: el round-trip no pierde información.
func ModelFromMap(d map[string]interface{}) (*Model, error) {
	for _, key := range []string{"name", "precision", "distribution", "globals", "functions"} {
		if _, ok := d[key]; !ok {
			return nil, fmt.Errorf("model map is missing key %q", key)
		}
	}

	m := &Model{
		Name:         asString(d["name"]),
		Dimensions:   asInt(d["dimensions"]),
		Precision:    Precision(asString(d["precision"])),
		Distribution: Distribution(asString(d["distribution"])),
		Objective:    Objective(asString(d["objective"])),
		Globals:      asString(d["globals"]),
		Functions:    make(map[string]string),
	}
	if m.Objective == "" {
		m.Objective = Minimize
	}

	switch fns := d["functions"].(type) {
	case map[string]string:
		for k, v := range fns {
			m.Functions[k] = v
		}
	case map[string]interface{}:
		for k, v := range fns {
			m.Functions[k] = asString(v)
		}
	default:
		return nil, fmt.Errorf("model map has invalid functions entry of type %T", d["functions"])
	}

	return m, nil
}

func (m *Model) String() string {
	b, err := json.Marshal(m)
	if err != nil {
		return m.Name
	}
	return string(b)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
