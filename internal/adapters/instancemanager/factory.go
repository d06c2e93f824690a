package instancemanager

import (
	"context"
	"fmt"

	"dev.csaopt.io/csaopt/internal/adapters/instancemanager/aws"
	"dev.csaopt.io/csaopt/internal/adapters/instancemanager/local"
	"dev.csaopt.io/csaopt/internal/config"
	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

// New selecciona el backend de instancias según la configuración: con la
// nube deshabilitada se usan contenedores locales; si no, decide el valor
// explícito de cloud.platform. Una plataforma no reconocida es un
// ConfigError inmediato, sin reintento.
func New(ctx context.Context, cfg *config.Config, logger ports.Logger) (ports.InstanceManager, error) {
	if cfg.Cloud.Disabled {
		return local.New(cfg, logger)
	}

	switch cfg.Cloud.Platform {
	case "aws":
		return aws.New(ctx, cfg, logger)
	default:
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("cloud platform %q unrecognized", cfg.Cloud.Platform)}
	}
}
