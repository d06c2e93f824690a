package domain

// InstanceRole distingue el rol de una instancia dentro de la ejecución.
type InstanceRole string

const (
	RoleBroker InstanceRole = "broker"
	RoleWorker InstanceRole = "worker"
)

// PropQueueID es la clave del mapa de propiedades que lleva el identificador
// de cola con el que se direcciona a un worker.
const PropQueueID = "queue_id"

// Instance representa un recurso de cómputo arrendado (broker o worker).
// Lo crea InstanceManager.Provision y lo destruye InstanceManager.Teardown.
type Instance struct {
	ID         string            `json:"id"`
	PublicAddr string            `json:"public_addr"`
	Role       InstanceRole      `json:"role"`
	Port       int               `json:"port,omitempty"`
	Password   string            `json:"password,omitempty"`
	Props      map[string]string `json:"props,omitempty"`
}

// NewBrokerInstance crea la instancia del broker con sus credenciales.
func NewBrokerInstance(id, addr string, port int, password string) *Instance {
	return &Instance{
		ID:         id,
		PublicAddr: addr,
		Role:       RoleBroker,
		Port:       port,
		Password:   password,
		Props:      make(map[string]string),
	}
}

// NewWorkerInstance crea una instancia worker con su identificador de cola.
func NewWorkerInstance(id, addr, queueID string) *Instance {
	return &Instance{
		ID:         id,
		PublicAddr: addr,
		Role:       RoleWorker,
		Props:      map[string]string{PropQueueID: queueID},
	}
}

// QueueID retorna el identificador de cola del worker, o cadena vacía si la
// instancia no lo lleva.
func (i *Instance) QueueID() string {
	if i == nil || i.Props == nil {
		return ""
	}
	return i.Props[PropQueueID]
}

// QueueIDs extrae, en orden, los identificadores de cola de un conjunto de
// workers. Las instancias sin identificador se omiten.
func QueueIDs(workers []*Instance) []string {
	ids := make([]string, 0, len(workers))
	for _, w := range workers {
		if id := w.QueueID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
