package config

import (
	"time"

	"github.com/spf13/viper"

	"dev.csaopt.io/csaopt/internal/core/domain"
)

// Config es el árbol de configuración ya resuelto que consume el núcleo de
// orquestación. Se ensambla una única vez en el arranque, con los valores por
// defecto aplicados en la carga; el núcleo nunca hace búsquedas por clave en
// caliente.
type Config struct {
	Cloud     CloudConfig     `mapstructure:"cloud"`
	Model     ModelConfig     `mapstructure:"model"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Store     StoreConfig     `mapstructure:"store"`
}

// CloudConfig selecciona y parametriza el backend de instancias.
type CloudConfig struct {
	Disabled    bool        `mapstructure:"disabled"`
	Platform    string      `mapstructure:"platform"`
	WorkerCount int         `mapstructure:"worker_count"`
	AWS         AWSConfig   `mapstructure:"aws"`
	Local       LocalConfig `mapstructure:"local"`
}

// AWSConfig parametriza el backend EC2.
type AWSConfig struct {
	Region             string `mapstructure:"region"`
	AccessKey          string `mapstructure:"access_key"`
	SecretKey          string `mapstructure:"secret_key"`
	WorkerAMI          string `mapstructure:"worker_ami"`
	BrokerAMI          string `mapstructure:"broker_ami"`
	WorkerInstanceType string `mapstructure:"worker_instance_type"`
	BrokerInstanceType string `mapstructure:"broker_instance_type"`
}

// LocalConfig parametriza el backend local sobre docker.
type LocalConfig struct {
	BrokerImage string `mapstructure:"broker_image"`
	WorkerImage string `mapstructure:"worker_image"`
}

// ModelConfig lleva las rutas de los ficheros de modelo a cargar.
type ModelConfig struct {
	Paths []string `mapstructure:"paths"`
}

// ExecutionConfig define la política de reparto de jobs.
type ExecutionConfig struct {
	Type  string               `mapstructure:"type"`
	Sweep []map[string]float64 `mapstructure:"sweep"`
}

// TimeoutConfig acota cada operación suspendida del pipeline.
type TimeoutConfig struct {
	Provision     time.Duration `mapstructure:"provision"`
	BrokerConnect time.Duration `mapstructure:"broker_connect"`
	WorkerJoin    time.Duration `mapstructure:"worker_join"`
	Deploy        time.Duration `mapstructure:"deploy"`
	Results       time.Duration `mapstructure:"results"`
}

// StoreConfig selecciona el almacén del histórico de ejecuciones.
type StoreConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cloud.disabled", false)
	v.SetDefault("cloud.worker_count", 2)
	v.SetDefault("cloud.local.broker_image", "redis:7-alpine")
	v.SetDefault("cloud.local.worker_image", "csaopt/worker:latest")
	v.SetDefault("cloud.aws.region", "us-east-1")
	v.SetDefault("cloud.aws.worker_instance_type", "t2.micro")
	v.SetDefault("cloud.aws.broker_instance_type", "m4.large")
	v.SetDefault("execution.type", "replica")
	v.SetDefault("timeouts.provision", "5m")
	v.SetDefault("timeouts.broker_connect", "30s")
	v.SetDefault("timeouts.worker_join", "60s")
	v.SetDefault("timeouts.deploy", "60s")
	v.SetDefault("timeouts.results", "5m")
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.path", "csaopt_runs.db")
}

// Load lee y fusiona los ficheros de configuración indicados y materializa el
// árbol tipado. La sección cloud debe aparecer en al menos uno de ellos; se
// comparte entre todos, como en las ejecuciones multi-modelo.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, &domain.ConfigError{Reason: "no configuration file given"}
	}

	v := viper.New()
	setDefaults(v)

	for i, path := range paths {
		v.SetConfigFile(path)
		if i == 0 {
			if err := v.ReadInConfig(); err != nil {
				return nil, &domain.ConfigError{Reason: err.Error()}
			}
			continue
		}
		if err := v.MergeInConfig(); err != nil {
			return nil, &domain.ConfigError{Reason: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &domain.ConfigError{Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate comprueba las precondiciones que no se reintentan nunca.
func (c *Config) Validate() error {
	if !c.Cloud.Disabled && c.Cloud.Platform == "" {
		return &domain.ConfigError{Reason: "no cloud configuration found"}
	}
	if c.Cloud.WorkerCount < 1 {
		return &domain.ConfigError{Reason: "at least one worker is required"}
	}
	switch c.Execution.Type {
	case "replica":
	case "sweep":
		if len(c.Execution.Sweep) == 0 {
			return &domain.ConfigError{Reason: "execution type sweep requires a non-empty sweep list"}
		}
	default:
		return &domain.ConfigError{Reason: "unknown execution type " + c.Execution.Type}
	}
	return nil
}
