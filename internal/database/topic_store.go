package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ErrTopicNotFound is returned when a status change names an unknown topic.
var ErrTopicNotFound = errors.New("topic not found")

var topicColumns = []string{
	"id", "source_config_id", "original_id", "title", "url",
	"COALESCE(summary, '')", "COALESCE(thumbnail, '')", "COALESCE(author, '')",
	"metrics", "status", "published_at", "saved_at",
}

// TopicStore persists topics and their tags. original_id is unique.
type TopicStore struct {
	db *DB
}

func NewTopicStore(db *DB) *TopicStore {
	return &TopicStore{db: db}
}

// PurgeNew deletes the still-unreviewed topics of one source config.
func (s *TopicStore) PurgeNew(ctx context.Context, sourceConfigID int64) (int64, error) {
	query, args, err := psql.Delete("topics").
		Where(sq.Eq{"source_config_id": sourceConfigID, "status": string(models.TopicStatusNew)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge new topics for source config %d: %w", sourceConfigID, err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// PurgeOrphanNew deletes unreviewed topics that lost their source config.
func (s *TopicStore) PurgeOrphanNew(ctx context.Context) (int64, error) {
	query, args, err := psql.Delete("topics").
		Where(sq.Eq{"source_config_id": nil, "status": string(models.TopicStatusNew)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build orphan purge query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge orphan topics: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// FindByOriginalID returns nil, nil when no topic has the id.
func (s *TopicStore) FindByOriginalID(ctx context.Context, originalID string) (*models.Topic, error) {
	query, args, err := psql.Select(topicColumns...).
		From("topics").
		Where(sq.Eq{"original_id": originalID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}

	topic, err := scanTopic(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find topic %s: %w", originalID, err)
	}

	tags, err := s.tags(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	topic.Tags = tags
	return topic, nil
}

// UpdateObservation refreshes the fields a re-observation may change. status
// and saved_at are never written here.
func (s *TopicStore) UpdateObservation(ctx context.Context, topic *models.Topic) error {
	metrics, err := encodeMetrics(topic.Metrics)
	if err != nil {
		return err
	}

	query, args, err := psql.Update("topics").
		Set("source_config_id", nullInt64(topic.SourceConfigID)).
		Set("author", nullString(topic.Author)).
		Set("metrics", metrics).
		Set("thumbnail", nullString(topic.Thumbnail)).
		Where(sq.Eq{"id": topic.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update topic %d: %w", topic.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update topic %d: %w", topic.ID, sql.ErrNoRows)
	}
	return nil
}

// InsertWithTags inserts topic and one tag row per distinct tag in a single
// transaction, setting topic.ID on success.
func (s *TopicStore) InsertWithTags(ctx context.Context, topic *models.Topic, tags []string) error {
	metrics, err := encodeMetrics(topic.Metrics)
	if err != nil {
		return err
	}
	if topic.Status == "" {
		topic.Status = models.TopicStatusNew
	}
	if topic.SavedAt.IsZero() {
		topic.SavedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Insert("topics").
		Columns("source_config_id", "original_id", "title", "url", "summary", "thumbnail",
			"author", "metrics", "status", "published_at", "saved_at").
		Values(nullInt64(topic.SourceConfigID), topic.OriginalID, topic.Title, topic.URL,
			nullString(topic.Summary), nullString(topic.Thumbnail), nullString(topic.Author),
			metrics, string(topic.Status), nullTime(topic.PublishedAt), topic.SavedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("insert topic %s: %w", topic.OriginalID, err)
	}

	if len(tags) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO topic_tags (topic_id, tag_name) VALUES ($1, $2)
			ON CONFLICT (topic_id, tag_name) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare tag insert: %w", err)
		}
		defer stmt.Close()

		for _, tag := range tags {
			if tag == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, id, tag); err != nil {
				return fmt.Errorf("insert tag %q for topic %s: %w", tag, topic.OriginalID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	topic.ID = id
	topic.Tags = tags
	return nil
}

// SetStatus records a reviewer decision. Moving a topic into saved stamps
// saved_at.
func (s *TopicStore) SetStatus(ctx context.Context, originalID string, status models.TopicStatus) error {
	update := psql.Update("topics").Set("status", string(status))
	if status == models.TopicStatusSaved {
		// SET expressions see the old row, so a repeated save keeps its time.
		update = update.Set("saved_at", sq.Expr("CASE WHEN status = ? THEN saved_at ELSE NOW() END", string(models.TopicStatusSaved)))
	}
	query, args, err := update.
		Where(sq.Eq{"original_id": originalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build status query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set status of topic %s: %w", originalID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set status of topic %s: %w", originalID, ErrTopicNotFound)
	}
	return nil
}

// CountByStatus returns the number of topics per status.
func (s *TopicStore) CountByStatus(ctx context.Context) (map[models.TopicStatus]int, error) {
	query, args, err := psql.Select("status", "COUNT(*)").
		From("topics").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count topics: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TopicStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.TopicStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *TopicStore) tags(ctx context.Context, topicID int64) ([]string, error) {
	query, args, err := psql.Select("tag_name").
		From("topic_tags").
		Where(sq.Eq{"topic_id": topicID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tag query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tags for topic %d: %w", topicID, err)
	}
	defer rows.Close()

	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func scanTopic(row *sql.Row) (*models.Topic, error) {
	var (
		t           models.Topic
		configID    sql.NullInt64
		rawMetrics  []byte
		status      string
		publishedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &configID, &t.OriginalID, &t.Title, &t.URL,
		&t.Summary, &t.Thumbnail, &t.Author, &rawMetrics, &status, &publishedAt, &t.SavedAt); err != nil {
		return nil, err
	}

	if configID.Valid {
		id := configID.Int64
		t.SourceConfigID = &id
	}
	if publishedAt.Valid {
		ts := publishedAt.Time
		t.PublishedAt = &ts
	}
	t.Status = models.TopicStatus(status)
	t.Metrics = models.Metrics{}
	if len(rawMetrics) > 0 {
		if err := json.Unmarshal(rawMetrics, &t.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return &t, nil
}

// encodeMetrics returns JSON text; lib/pq would send []byte as bytea.
func encodeMetrics(m models.Metrics) (string, error) {
	if m == nil {
		m = models.Metrics{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metrics: %w", err)
	}
	return string(raw), nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
