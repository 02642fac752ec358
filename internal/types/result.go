// internal/types/result.go
package types

import "time"

// PromoteResult décrit l'issue d'une promotion pour une image.
type PromoteResult struct {
	Repository    string
	SourceTag     string
	TargetTag     string
	RollbackTag   string
	RolledBack    bool   // le tag de rollback a bien été posé
	RollbackError string // échec non fatal du tag de rollback
	Success       bool
	Error         string
}

// DeployResult décrit l'issue d'un déploiement pour un stage.
type DeployResult struct {
	Stage    string
	Services []string
	Images   []string
	Updated  bool // le dépôt de configuration a été mis à jour
	Success  bool
	Error    string
}

// RemoveTagResult décrit l'issue d'une suppression de tag.
type RemoveTagResult struct {
	Repository string
	Tag        string
	Success    bool
	Error      string
}

// HistoryEntry est une ligne de l'historique local des opérations.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Operation string    `json:"operation"` // release, deploy, ...
	Subject   string    `json:"subject"`   // repository ou stage
	SourceTag string    `json:"source_tag,omitempty"`
	TargetTag string    `json:"target_tag,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
