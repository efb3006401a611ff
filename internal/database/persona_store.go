package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// PersonaStore reads personas and their source configs.
type PersonaStore struct {
	db *DB
}

func NewPersonaStore(db *DB) *PersonaStore {
	return &PersonaStore{db: db}
}

// ListPersonas returns every persona with all of its configs (enabled or
// not), ordered by id.
func (s *PersonaStore) ListPersonas(ctx context.Context) ([]models.Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), interests, depth, COALESCE(custom_prompt, '')
		FROM personas
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	personas := make([]models.Persona, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var p models.Persona
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, pq.Array(&p.Interests), &p.Depth, &p.CustomPrompt); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		p.SourceConfigs = []models.SourceConfig{}
		index[p.ID] = len(personas)
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}

	configs, err := s.listSourceConfigs(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if i, ok := index[cfg.PersonaID]; ok {
			personas[i].SourceConfigs = append(personas[i].SourceConfigs, cfg)
		}
	}

	return personas, nil
}

func (s *PersonaStore) listSourceConfigs(ctx context.Context) ([]models.SourceConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, persona_id, type, name, config_data, enabled, views_threshold
		FROM source_configs
		ORDER BY persona_id, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query source configs: %w", err)
	}
	defer rows.Close()

	configs := make([]models.SourceConfig, 0)
	for rows.Next() {
		var cfg models.SourceConfig
		var raw []byte
		if err := rows.Scan(&cfg.ID, &cfg.PersonaID, &cfg.Type, &cfg.Name, &raw, &cfg.Enabled, &cfg.ViewsThreshold); err != nil {
			return nil, fmt.Errorf("scan source config: %w", err)
		}
		cfg.ConfigData = map[string]interface{}{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg.ConfigData); err != nil {
				return nil, fmt.Errorf("decode config_data for source config %d: %w", cfg.ID, err)
			}
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// SeedPersonas upserts personas and their configs by id. Existing rows are
// overwritten; rows not mentioned are left alone.
func (s *PersonaStore) SeedPersonas(ctx context.Context, personas []models.Persona) error {
	if len(personas) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range personas {
		depth := p.Depth
		if depth < 1 || depth > 10 {
			depth = 5
		}
		interests := p.Interests
		if interests == nil {
			interests = []string{}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO personas (id, name, description, interests, depth, custom_prompt, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				interests = EXCLUDED.interests,
				depth = EXCLUDED.depth,
				custom_prompt = EXCLUDED.custom_prompt,
				updated_at = NOW()
		`, p.ID, p.Name, nullString(p.Description), pq.Array(interests), depth, nullString(p.CustomPrompt)); err != nil {
			return fmt.Errorf("upsert persona %d: %w", p.ID, err)
		}

		for _, cfg := range p.SourceConfigs {
			data := cfg.ConfigData
			if data == nil {
				data = map[string]interface{}{}
			}
			raw, err := json.Marshal(data)
			if err != nil {
				return fmt.Errorf("encode config_data for source config %d: %w", cfg.ID, err)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO source_configs (id, persona_id, type, name, config_data, enabled, views_threshold, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				ON CONFLICT (id) DO UPDATE SET
					persona_id = EXCLUDED.persona_id,
					type = EXCLUDED.type,
					name = EXCLUDED.name,
					config_data = EXCLUDED.config_data,
					enabled = EXCLUDED.enabled,
					views_threshold = EXCLUDED.views_threshold,
					updated_at = NOW()
			`, cfg.ID, p.ID, string(cfg.Type), cfg.Name, string(raw), cfg.Enabled, cfg.ViewsThreshold); err != nil {
				return fmt.Errorf("upsert source config %d: %w", cfg.ID, err)
			}
		}
	}

	// Explicit ids bypass the sequences; move them past the seeded rows.
	for _, table := range []string{"personas", "source_configs"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))`, table,
		)); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
