package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "topicbuddy",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DB wraps the sql.DB connection
type DB struct {
	*sql.DB
	config Config
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, config: config}, nil
}

// Wrap adopts an existing connection, e.g. one opened by a test helper.
func Wrap(conn *sql.DB) *DB {
	return &DB{DB: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	return Migrate(ctx, db.DB)
}

// Migrate applies the schema to conn. Every statement is idempotent.
func Migrate(ctx context.Context, conn *sql.DB) error {
	migrations := []string{
		migrationPersonas,
		migrationSourceConfigs,
		migrationTopics,
		migrationTopicTags,
		migrationIndexes,
	}

	for i, migration := range migrations {
		if _, err := conn.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationPersonas = `
CREATE TABLE IF NOT EXISTS personas (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    interests TEXT[] NOT NULL DEFAULT '{}',
    depth INTEGER NOT NULL DEFAULT 5 CHECK (depth BETWEEN 1 AND 10),
    custom_prompt TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
)`

const migrationSourceConfigs = `
CREATE TABLE IF NOT EXISTS source_configs (
    id BIGSERIAL PRIMARY KEY,
    persona_id BIGINT NOT NULL REFERENCES personas(id) ON DELETE CASCADE,
    type VARCHAR(32) NOT NULL,
    name VARCHAR(255) NOT NULL DEFAULT '',
    config_data JSONB NOT NULL DEFAULT '{}',
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    views_threshold BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
)`

// Deleting a source config orphans its topics rather than removing them.
const migrationTopics = `
CREATE TABLE IF NOT EXISTS topics (
    id BIGSERIAL PRIMARY KEY,
    source_config_id BIGINT REFERENCES source_configs(id) ON DELETE SET NULL,
    original_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    summary TEXT,
    thumbnail TEXT,
    author VARCHAR(255),
    metrics JSONB NOT NULL DEFAULT '{}',
    status VARCHAR(16) NOT NULL DEFAULT 'new',
    published_at TIMESTAMPTZ,
    saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const migrationTopicTags = `
CREATE TABLE IF NOT EXISTS topic_tags (
    id BIGSERIAL PRIMARY KEY,
    topic_id BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    tag_name VARCHAR(255) NOT NULL,
    UNIQUE (topic_id, tag_name)
)`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_source_configs_persona ON source_configs(persona_id);
CREATE INDEX IF NOT EXISTS idx_topics_source_status ON topics(source_config_id, status);
CREATE INDEX IF NOT EXISTS idx_topics_status ON topics(status);
CREATE INDEX IF NOT EXISTS idx_topic_tags_topic ON topic_tags(topic_id);
`
