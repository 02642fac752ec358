// internal/types/options/promote.go
package options

// PromoteOptions contrôle une promotion de release.
type PromoteOptions struct {
	Repos  []string // restreint la promotion à ces repositories, vide = tous
	DryRun bool
}

// NewPromoteOptions crée les options avec les valeurs par défaut.
func NewPromoteOptions(opts ...PromoteOption) *PromoteOptions {
	options := &PromoteOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

type PromoteOption func(*PromoteOptions)

func WithPromoteRepos(repos []string) PromoteOption {
	return func(o *PromoteOptions) {
		o.Repos = repos
	}
}

func WithPromoteDryRun(dryRun bool) PromoteOption {
	return func(o *PromoteOptions) {
		o.DryRun = dryRun
	}
}
