// internal/types/options/deploy.go
package options

// DeployOptions contrôle la séquence de déploiement d'un stage.
type DeployOptions struct {
	Services []string // restreint le déploiement à ces services, vide = tous
	Update   bool     // mettre à jour le dépôt de configuration avant recréation
}

// NewDeployOptions crée les options avec les valeurs par défaut.
func NewDeployOptions(opts ...DeployOption) *DeployOptions {
	options := &DeployOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

type DeployOption func(*DeployOptions)

func WithDeployServices(services []string) DeployOption {
	return func(o *DeployOptions) {
		o.Services = services
	}
}

func WithDeployUpdate(update bool) DeployOption {
	return func(o *DeployOptions) {
		o.Update = update
	}
}
