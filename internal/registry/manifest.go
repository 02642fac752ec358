// internal/registry/manifest.go
package registry

import (
	"encoding/json"
	"fmt"
)

// Manifest encapsule la réponse brute d'un manifest. Le corps original
// est conservé tel quel: c'est lui qui est re-poussé lors d'un put-tag,
// octet pour octet.
type Manifest struct {
	raw     []byte
	digest  string // en-tête Docker-Content-Digest, vide si absent
	fields  manifestFields
	history map[string]interface{} // décodé paresseusement, mémoïsé
}

type manifestFields struct {
	Name          string            `json:"name"`
	Tag           string            `json:"tag"`
	SchemaVersion int               `json:"schemaVersion"`
	FsLayers      []json.RawMessage `json:"fsLayers"` // schéma v1
	Layers        []json.RawMessage `json:"layers"`   // schéma v2
	History       []struct {
		V1Compatibility string `json:"v1Compatibility"`
	} `json:"history"`
}

// NewManifest décode un corps de réponse manifest.
func NewManifest(raw []byte, digest string) (*Manifest, error) {
	m := &Manifest{raw: raw, digest: digest}
	if err := json.Unmarshal(raw, &m.fields); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}

// Raw retourne le corps original du manifest.
func (m *Manifest) Raw() []byte { return m.raw }

// Digest retourne le digest de contenu annoncé par le registry, chaîne
// vide s'il ne l'a pas fourni.
func (m *Manifest) Digest() string { return m.digest }

func (m *Manifest) Name() string { return m.fields.Name }

func (m *Manifest) Tag() string { return m.fields.Tag }

func (m *Manifest) SchemaVersion() int { return m.fields.SchemaVersion }

// Layers retourne les couches, `fsLayers` en schéma v1 ou `layers` en v2.
func (m *Manifest) Layers() []json.RawMessage {
	if m.fields.FsLayers != nil {
		return m.fields.FsLayers
	}
	return m.fields.Layers
}

// History décode paresseusement le blob de compatibilité v1 embarqué dans
// le manifest. Un échec de décodage est une branche définie qui retourne
// une map vide, jamais une erreur.
func (m *Manifest) History() map[string]interface{} {
	if m.history != nil {
		return m.history
	}
	m.history = map[string]interface{}{}
	if len(m.fields.History) == 0 {
		return m.history
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(m.fields.History[0].V1Compatibility), &decoded); err != nil {
		return m.history
	}
	if decoded != nil {
		m.history = decoded
	}
	return m.history
}

// Created retourne la date de création extraite de l'historique, chaîne
// vide si indisponible.
func (m *Manifest) Created() string {
	if v, ok := m.History()["created"].(string); ok {
		return v
	}
	return ""
}
