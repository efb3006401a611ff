package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// PersonasFile is the on-disk seed format for personas and their sources.
type PersonasFile struct {
	Personas []models.Persona `yaml:"personas"`
}

// LoadPersonas reads and validates a persona seed file.
func LoadPersonas(path string) ([]models.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas config: %w", err)
	}
	return ParsePersonas(data)
}

// ParsePersonas decodes seed YAML. Persona and source ids must be positive
// and unique; depth defaults to 5.
func ParsePersonas(data []byte) ([]models.Persona, error) {
	var file PersonasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse personas config: %w", err)
	}

	personaIDs := make(map[int64]bool)
	sourceIDs := make(map[int64]bool)
	for i := range file.Personas {
		p := &file.Personas[i]
		if p.ID <= 0 || personaIDs[p.ID] {
			return nil, fmt.Errorf("persona %q: id must be positive and unique", p.Name)
		}
		personaIDs[p.ID] = true

		if p.Depth == 0 {
			p.Depth = 5
		}
		if p.Interests == nil {
			p.Interests = []string{}
		}

		for j := range p.SourceConfigs {
			src := &p.SourceConfigs[j]
			if src.ID <= 0 || sourceIDs[src.ID] {
				return nil, fmt.Errorf("persona %d source %q: id must be positive and unique", p.ID, src.Name)
			}
			sourceIDs[src.ID] = true

			if !src.Type.Valid() {
				return nil, fmt.Errorf("persona %d source %d: %w: %q", p.ID, src.ID, models.ErrUnknownSourceType, src.Type)
			}
			if src.ConfigData == nil {
				src.ConfigData = map[string]interface{}{}
			}
			src.PersonaID = p.ID
		}
	}

	return file.Personas, nil
}

// FindPersonasConfig searches for personas.yaml in common locations
func FindPersonasConfig() string {
	locations := []string{
		"personas.yaml",        // Current directory
		"../personas.yaml",     // Parent directory (for running from cmd/server)
		"/app/personas.yaml",   // Docker container path
		"config/personas.yaml", // Config subdirectory
	}

	if envPath := os.Getenv("PERSONAS_CONFIG_PATH"); envPath != "" {
		locations = append([]string{envPath}, locations...)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}

	return ""
}
