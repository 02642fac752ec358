// internal/config/settings.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"stagehand/internal/registry"
	"stagehand/internal/types"
	"stagehand/pkg/utils"
)

// Settings regroupe les réglages utilisateur: l'accès au registry et le
// profil de chaque environnement de déploiement.
type Settings struct {
	Registry    registry.Config    `yaml:"registry"`
	Development types.StageProfile `yaml:"development"`
	Quality     types.StageProfile `yaml:"quality"`
}

// LoadSettings lit le fichier de réglages YAML.
func LoadSettings(path string) (*Settings, error) {
	expanded, err := utils.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve settings path: %w", err)
	}

	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf(
			"cannot read settings file %s: define the 'registry', 'development' "+
				"and 'quality' sections before using this command (%v)", expanded, err)}
	}

	var settings Settings
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf(
			"settings file %s is not valid yaml: %v", expanded, err)}
	}
	return &settings, nil
}

// Save écrit les réglages dans le fichier donné, en le créant si besoin.
func (s *Settings) Save(path string) error {
	expanded, err := utils.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("failed to resolve settings path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(expanded, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Stage retourne le profil de l'environnement demandé.
func (s *Settings) Stage(name string) (types.StageProfile, error) {
	switch name {
	case types.Development:
		return s.Development, nil
	case types.Quality:
		return s.Quality, nil
	default:
		return types.StageProfile{}, &ConfigurationError{
			Message: fmt.Sprintf("unknown stage '%s'", name)}
	}
}

// ValidateRegistry vérifie que la section registry est exploitable.
func (s *Settings) ValidateRegistry() error {
	if s.Registry.Host == "" {
		return &ConfigurationError{Message: "registry host is not configured"}
	}
	return nil
}

// Set applique une valeur à une variable d'une section. Les booléens
// sont interprétés avec strconv.ParseBool.
func (s *Settings) Set(section, variable, value string) error {
	switch section {
	case "registry":
		switch variable {
		case "host":
			s.Registry.Host = value
		case "namespace":
			s.Registry.Namespace = value
		case "credentials":
			s.Registry.Credentials = value
		case "insecure":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean '%s' for registry.insecure", value)
			}
			s.Registry.Insecure = b
		case "verify":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean '%s' for registry.verify", value)
			}
			s.Registry.Verify = b
		default:
			return fmt.Errorf("unknown variable '%s' in section registry", variable)
		}
		return nil

	case types.Development, types.Quality:
		profile, _ := s.Stage(section)
		switch variable {
		case "host":
			profile.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid port '%s' for %s.port", value, section)
			}
			profile.Port = port
		case "user":
			profile.User = value
		case "pkey":
			profile.Pkey = value
		case "path":
			profile.Path = value
		case "tag":
			profile.Tag = value
		default:
			return fmt.Errorf("unknown variable '%s' in section %s", variable, section)
		}
		if section == types.Development {
			s.Development = profile
		} else {
			s.Quality = profile
		}
		return nil

	default:
		return fmt.Errorf("unknown section '%s'", section)
	}
}

// Section est une vue ordonnée d'une section pour l'affichage.
type Section struct {
	Name      string
	Variables []Variable
}

// Variable est un couple nom/valeur affichable.
type Variable struct {
	Name  string
	Value string
}

// Sections retourne les sections dans un ordre stable, credentials
// masqués.
func (s *Settings) Sections() []Section {
	stage := func(name string, p types.StageProfile) Section {
		return Section{Name: name, Variables: []Variable{
			{Name: "host", Value: p.Host},
			{Name: "port", Value: strconv.Itoa(p.Port)},
			{Name: "user", Value: p.User},
			{Name: "pkey", Value: p.Pkey},
			{Name: "path", Value: p.Path},
			{Name: "tag", Value: p.Tag},
		}}
	}
	return []Section{
		{Name: "registry", Variables: []Variable{
			{Name: "host", Value: s.Registry.Host},
			{Name: "namespace", Value: s.Registry.Namespace},
			{Name: "credentials", Value: MaskCredentials(s.Registry.Credentials)},
			{Name: "insecure", Value: strconv.FormatBool(s.Registry.Insecure)},
			{Name: "verify", Value: strconv.FormatBool(s.Registry.Verify)},
		}},
		stage(types.Development, s.Development),
		stage(types.Quality, s.Quality),
	}
}

// MaskCredentials masque le mot de passe d'un couple "user:pass".
func MaskCredentials(credentials string) string {
	if credentials == "" {
		return ""
	}
	user, _, found := strings.Cut(credentials, ":")
	if !found {
		return "******"
	}
	return user + ":******"
}
