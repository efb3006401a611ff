package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func TestMemoryStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	topic := &models.Topic{
		SourceConfigID: int64Ptr(1),
		OriginalID:     "BV1",
		Title:          "First",
		Metrics:        models.Metrics{"views": 10},
	}
	if err := store.InsertWithTags(ctx, topic, []string{"fpv", "fpv", "", "build"}); err != nil {
		t.Fatalf("InsertWithTags() error = %v", err)
	}
	if topic.ID == 0 {
		t.Error("InsertWithTags() should assign an id")
	}

	got, err := store.FindByOriginalID(ctx, "BV1")
	if err != nil {
		t.Fatalf("FindByOriginalID() error = %v", err)
	}
	if got == nil {
		t.Fatal("FindByOriginalID() = nil, want topic")
	}
	if got.Status != models.TopicStatusNew {
		t.Errorf("Status = %q, want new", got.Status)
	}
	if got.SavedAt.IsZero() {
		t.Error("SavedAt should be set on insert")
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v, want [fpv build]", got.Tags)
	}

	if err := store.InsertWithTags(ctx, &models.Topic{OriginalID: "BV1"}, nil); err == nil {
		t.Error("InsertWithTags() with duplicate original_id should fail")
	}

	missing, err := store.FindByOriginalID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("FindByOriginalID(nope) = %v, %v, want nil, nil", missing, err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "a", Metrics: models.Metrics{"views": 1}}, nil)

	got, _ := store.FindByOriginalID(ctx, "a")
	got.Metrics["views"] = 999
	got.Status = models.TopicStatusSaved

	again, _ := store.FindByOriginalID(ctx, "a")
	if again.Metrics.Views() != 1 || again.Status != models.TopicStatusNew {
		t.Errorf("stored topic was mutated through a returned copy: %+v", again)
	}
}

func TestMemoryStore_UpdateObservationKeepsStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "a", SourceConfigID: int64Ptr(1)}, nil)
	_ = store.SetStatus(ctx, "a", models.TopicStatusSaved)

	found, _ := store.FindByOriginalID(ctx, "a")
	found.Author = "Someone"
	found.Metrics = models.Metrics{"views": 50}
	found.SourceConfigID = int64Ptr(2)
	found.Status = models.TopicStatusNew
	if err := store.UpdateObservation(ctx, found); err != nil {
		t.Fatalf("UpdateObservation() error = %v", err)
	}

	got, _ := store.FindByOriginalID(ctx, "a")
	if got.Status != models.TopicStatusSaved {
		t.Errorf("Status = %q, want saved", got.Status)
	}
	if got.Author != "Someone" || got.Metrics.Views() != 50 || *got.SourceConfigID != 2 {
		t.Errorf("UpdateObservation() did not apply fields: %+v", got)
	}

	if err := store.UpdateObservation(ctx, &models.Topic{ID: 999}); err == nil {
		t.Error("UpdateObservation() of unknown id should fail")
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "new-1", SourceConfigID: int64Ptr(1)}, nil)
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "saved-1", SourceConfigID: int64Ptr(1)}, nil)
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "new-2", SourceConfigID: int64Ptr(2)}, nil)
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "orphan"}, nil)
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "orphan-rejected"}, nil)
	_ = store.SetStatus(ctx, "saved-1", models.TopicStatusSaved)
	_ = store.SetStatus(ctx, "orphan-rejected", models.TopicStatusRejected)

	n, err := store.PurgeNew(ctx, 1)
	if err != nil || n != 1 {
		t.Errorf("PurgeNew(1) = %d, %v, want 1, nil", n, err)
	}
	n, err = store.PurgeOrphanNew(ctx)
	if err != nil || n != 1 {
		t.Errorf("PurgeOrphanNew() = %d, %v, want 1, nil", n, err)
	}

	var ids []string
	for _, topic := range store.Topics() {
		ids = append(ids, topic.OriginalID)
	}
	want := []string{"saved-1", "new-2", "orphan-rejected"}
	if len(ids) != len(want) {
		t.Fatalf("remaining topics = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("remaining[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	// A purged original_id can be inserted again.
	if err := store.InsertWithTags(ctx, &models.Topic{OriginalID: "new-1"}, nil); err != nil {
		t.Errorf("re-insert after purge error = %v", err)
	}
}

func TestMemoryStore_DeleteSourceConfigOrphansTopics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.SeedPersonas(ctx, []models.Persona{{
		ID:   1,
		Name: "Drones",
		SourceConfigs: []models.SourceConfig{
			{ID: 10, Type: models.SourceTypeRSSFeed, Enabled: true},
			{ID: 11, Type: models.SourceTypeHotList, Enabled: true},
		},
	}})
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "a", SourceConfigID: int64Ptr(10)}, nil)

	if err := store.DeleteSourceConfig(ctx, 10); err != nil {
		t.Fatalf("DeleteSourceConfig() error = %v", err)
	}

	got, _ := store.FindByOriginalID(ctx, "a")
	if got.SourceConfigID != nil {
		t.Errorf("SourceConfigID = %v, want nil", *got.SourceConfigID)
	}
	personas, _ := store.ListPersonas(ctx)
	if len(personas[0].SourceConfigs) != 1 || personas[0].SourceConfigs[0].ID != 11 {
		t.Errorf("SourceConfigs = %+v, want only config 11", personas[0].SourceConfigs)
	}
}

func TestMemoryStore_SeedPersonas(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.SeedPersonas(ctx, []models.Persona{
		{ID: 2, Name: "Second"},
		{ID: 1, Name: "First", SourceConfigs: []models.SourceConfig{{ID: 5}}},
	})
	_ = store.SeedPersonas(ctx, []models.Persona{{ID: 2, Name: "Second v2"}})

	personas, err := store.ListPersonas(ctx)
	if err != nil {
		t.Fatalf("ListPersonas() error = %v", err)
	}
	if len(personas) != 2 {
		t.Fatalf("ListPersonas() returned %d, want 2", len(personas))
	}
	if personas[0].ID != 1 || personas[1].Name != "Second v2" {
		t.Errorf("ListPersonas() = %+v", personas)
	}
	if personas[0].SourceConfigs[0].PersonaID != 1 {
		t.Errorf("PersonaID = %d, want 1", personas[0].SourceConfigs[0].PersonaID)
	}
}

func TestMemoryStore_CountByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "a"}, nil)
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "b"}, nil)
	_ = store.SetStatus(ctx, "b", models.TopicStatusRejected)

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[models.TopicStatusNew] != 1 || counts[models.TopicStatusRejected] != 1 {
		t.Errorf("CountByStatus() = %v", counts)
	}

	if err := store.SetStatus(ctx, "missing", models.TopicStatusSaved); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("SetStatus() of unknown topic error = %v, want ErrTopicNotFound", err)
	}
}

func TestMemoryStore_SetStatusStampsSavedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	inserted := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "BV1", SavedAt: inserted}, nil)

	if err := store.SetStatus(ctx, "BV1", models.TopicStatusSaved); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	got, _ := store.FindByOriginalID(ctx, "BV1")
	if got.Status != models.TopicStatusSaved {
		t.Errorf("Status = %q, want saved", got.Status)
	}
	if !got.SavedAt.After(inserted) {
		t.Fatalf("SavedAt = %v, want a time after %v", got.SavedAt, inserted)
	}

	firstSave := got.SavedAt
	if err := store.SetStatus(ctx, "BV1", models.TopicStatusSaved); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	again, _ := store.FindByOriginalID(ctx, "BV1")
	if !again.SavedAt.Equal(firstSave) {
		t.Errorf("repeated save moved SavedAt from %v to %v", firstSave, again.SavedAt)
	}

	_ = store.InsertWithTags(ctx, &models.Topic{OriginalID: "BV2", SavedAt: inserted}, nil)
	_ = store.SetStatus(ctx, "BV2", models.TopicStatusRejected)
	rejected, _ := store.FindByOriginalID(ctx, "BV2")
	if !rejected.SavedAt.Equal(inserted) {
		t.Errorf("rejecting changed SavedAt to %v, want %v", rejected.SavedAt, inserted)
	}
}
