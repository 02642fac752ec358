// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"stagehand/pkg/utils"
)

const (
	DefaultLogLevel     = "info"
	DefaultDbPath       = "~/.stagehand/history.db"
	DefaultSettingsPath = "~/.stagehand/config.yml"
	DefaultRetention    = 500
	DefaultSortBy       = "date"

	// Variables d'environnement.
	EnvLogLevel  = "STAGEHAND_LOG_LEVEL"
	EnvDbPath    = "STAGEHAND_DB_PATH"
	EnvSettings  = "STAGEHAND_CONFIG"
	EnvRetention = "STAGEHAND_RETENTION"
)

// ConfigurationError signale une configuration utilisateur invalide ou
// incomplète.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// Config contient la configuration globale de l'application.
type Config struct {
	// Configuration générale
	LogLevel     string
	DbPath       string
	SettingsPath string
	Yes          bool // répond oui à toutes les confirmations
	Retention    int  // nombre d'entrées d'historique conservées (0 = illimité)

	// Options de l'historique
	Limit  int
	Last   bool
	SortBy string
	JSON   bool
	Search string
	Since  string
	Before string

	// Logger partagé
	Logger *logrus.Logger

	settings *Settings // chargé à la demande
}

// NewConfig crée une configuration avec les valeurs par défaut.
func NewConfig() *Config {
	return &Config{
		LogLevel:     DefaultLogLevel,
		DbPath:       DefaultDbPath,
		SettingsPath: DefaultSettingsPath,
		Retention:    DefaultRetention,
		SortBy:       DefaultSortBy,
		Logger:       newLogger(DefaultLogLevel),
	}
}

// LoadFromEnv applique les variables d'environnement à la configuration.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvDbPath); v != "" {
		c.DbPath = v
	}
	if v := os.Getenv(EnvSettings); v != "" {
		c.SettingsPath = v
	}
	if v := os.Getenv(EnvRetention); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Retention = n
		}
	}
}

// Validate vérifie la cohérence de la configuration.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level '%s': %w", c.LogLevel, err)
	}
	c.SetLogLevel(c.LogLevel)

	if c.Since != "" {
		if _, err := utils.ParseTime(c.Since); err != nil {
			return fmt.Errorf("invalid since date '%s': %w", c.Since, err)
		}
	}
	if c.Before != "" {
		if _, err := utils.ParseTime(c.Before); err != nil {
			return fmt.Errorf("invalid before date '%s': %w", c.Before, err)
		}
	}
	if c.SortBy != "date" && c.SortBy != "subject" {
		return fmt.Errorf("invalid sort-by '%s': must be 'date' or 'subject'", c.SortBy)
	}
	return nil
}

// SetLogLevel change le niveau de log du logger partagé.
func (c *Config) SetLogLevel(level string) {
	if parsed, err := logrus.ParseLevel(level); err == nil {
		c.Logger.SetLevel(parsed)
	}
}

// Settings retourne les réglages utilisateur, chargés une seule fois
// depuis le fichier de configuration.
func (c *Config) Settings() (*Settings, error) {
	if c.settings != nil {
		return c.settings, nil
	}
	settings, err := LoadSettings(c.SettingsPath)
	if err != nil {
		return nil, err
	}
	c.settings = settings
	return c.settings, nil
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	return logger
}
