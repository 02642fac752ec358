// internal/types/stage.go
package types

// Stages atteignables par connexion distante. La production n'est pas
// déployable directement: on ne l'atteint qu'au travers du flux de
// release (rc vers latest).
const (
	Development = "development"
	Quality     = "quality"
)

// DeployStages liste les stages déployables, dans l'ordre de traitement.
var DeployStages = []string{Development, Quality}

// StageProfile décrit le profil de connexion d'un stage.
type StageProfile struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port,omitempty"`
	User string `yaml:"user"`
	Pkey string `yaml:"pkey"`           // chemin de la clé privée
	Path string `yaml:"path"`           // répertoire de travail distant
	Tag  string `yaml:"tag,omitempty"`  // surcharge de tag, informative
}
