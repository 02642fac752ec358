// internal/types/options/history.go
package options

// HistoryOptions filtre la consultation de l'historique local.
type HistoryOptions struct {
	Subjects  []string // repositories ou stages
	Operation string   // release, deploy, vide = toutes
	Limit     int
	Last      bool
	SortBy    string // date ou subject
	JSON      bool
	Search    string
	Since     string // date libre, interprétée à la requête
	Before    string
}

// NewHistoryOptions crée les options avec les valeurs par défaut.
func NewHistoryOptions(opts ...HistoryOption) *HistoryOptions {
	options := &HistoryOptions{
		SortBy: "date",
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

type HistoryOption func(*HistoryOptions)

func WithHistorySubjects(subjects []string) HistoryOption {
	return func(o *HistoryOptions) {
		o.Subjects = subjects
	}
}

func WithHistoryOperation(operation string) HistoryOption {
	return func(o *HistoryOptions) {
		o.Operation = operation
	}
}

func WithHistoryLimit(limit int) HistoryOption {
	return func(o *HistoryOptions) {
		o.Limit = limit
	}
}
