package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "store-test-*")
	if err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewStore(dbPath, 0)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatal(err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func testSections() []*Section {
	return []*Section{
		{SectionID: "GEN1", Title: "Genesis 1", Content: "In the beginning God created the heaven and the earth.", Format: "text"},
		{SectionID: "GEN2", Title: "Genesis 2", Content: "Thus the heavens and the earth were finished.", Format: "text"},
		{SectionID: "GEN10", Title: "Genesis 10", Content: "Now these are the generations of the sons of Noah.", Format: "text"},
	}
}

func TestStore_SaveAndGetText(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	text := &Text{
		ID:           "kjv",
		Abbreviation: "KJV",
		Name:         "King James Version",
		LanguageCode: "en",
	}

	if err := store.SaveText(text, testSections()); err != nil {
		t.Fatalf("failed to save text: %v", err)
	}

	retrieved, err := store.GetText("KJV")
	if err != nil {
		t.Fatalf("failed to get text: %v", err)
	}

	if retrieved.Name != text.Name {
		t.Errorf("expected Name %s, got %s", text.Name, retrieved.Name)
	}
	if retrieved.ImportedAt.IsZero() {
		t.Error("expected ImportedAt to be set")
	}
	want := []string{"GEN1", "GEN2", "GEN10"}
	if len(retrieved.SectionIDs) != len(want) {
		t.Fatalf("expected %d section ids, got %d", len(want), len(retrieved.SectionIDs))
	}
	for i, id := range want {
		if retrieved.SectionIDs[i] != id {
			t.Errorf("section %d: expected %s, got %s", i, id, retrieved.SectionIDs[i])
		}
	}
}

func TestStore_GetText_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetText("non-existent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SaveText_EmptyID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.SaveText(&Text{ID: "  "}, nil); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestStore_GetAllTexts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	for _, id := range []string{"WEB", "asv", "KJV"} {
		if err := store.SaveText(&Text{ID: id}, nil); err != nil {
			t.Fatalf("failed to save text: %v", err)
		}
	}

	texts, err := store.GetAllTexts()
	if err != nil {
		t.Fatalf("failed to get all texts: %v", err)
	}

	want := []string{"asv", "KJV", "WEB"}
	if len(texts) != len(want) {
		t.Fatalf("expected %d texts, got %d", len(want), len(texts))
	}
	for i, id := range want {
		if texts[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, texts[i].ID)
		}
	}
}

func TestStore_GetSection(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.SaveText(&Text{ID: "KJV"}, testSections()); err != nil {
		t.Fatalf("failed to save text: %v", err)
	}

	sec, err := store.GetSection("kjv", "GEN2")
	if err != nil {
		t.Fatalf("failed to get section: %v", err)
	}
	if sec.TextID != "KJV" {
		t.Errorf("expected TextID KJV, got %s", sec.TextID)
	}
	if sec.Title != "Genesis 2" {
		t.Errorf("expected title Genesis 2, got %s", sec.Title)
	}

	if _, err := store.GetSection("KJV", "EXO1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing section, got %v", err)
	}
	if _, err := store.GetSection("ASV", "GEN1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing text, got %v", err)
	}
}

func TestStore_GetSections_Order(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.SaveText(&Text{ID: "KJV"}, testSections()); err != nil {
		t.Fatalf("failed to save text: %v", err)
	}

	sections, err := store.GetSections("KJV")
	if err != nil {
		t.Fatalf("failed to get sections: %v", err)
	}

	// bbolt iterates keys bytewise (GEN1, GEN10, GEN2); the text order wins
	want := []string{"GEN1", "GEN2", "GEN10"}
	if len(sections) != len(want) {
		t.Fatalf("expected %d sections, got %d", len(want), len(sections))
	}
	for i, id := range want {
		if sections[i].SectionID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, sections[i].SectionID)
		}
	}
}

func TestStore_SaveText_ReplacesSections(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.SaveText(&Text{ID: "KJV"}, testSections()); err != nil {
		t.Fatalf("failed to save text: %v", err)
	}
	replacement := []*Section{{SectionID: "EXO1", Content: "Now these are the names"}}
	if err := store.SaveText(&Text{ID: "KJV", ImportedAt: time.Now()}, replacement); err != nil {
		t.Fatalf("failed to resave text: %v", err)
	}

	sections, err := store.GetSections("KJV")
	if err != nil {
		t.Fatalf("failed to get sections: %v", err)
	}
	if len(sections) != 1 || sections[0].SectionID != "EXO1" {
		t.Errorf("expected only EXO1 after replace, got %d sections", len(sections))
	}
}

func TestStore_DeleteText(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.SaveText(&Text{ID: "KJV"}, testSections()); err != nil {
		t.Fatalf("failed to save text: %v", err)
	}
	if err := store.DeleteText("kjv"); err != nil {
		t.Fatalf("failed to delete text: %v", err)
	}

	if _, err := store.GetText("KJV"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected text to be deleted, got %v", err)
	}
	if _, err := store.GetSection("KJV", "GEN1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected sections to be deleted, got %v", err)
	}

	if err := store.DeleteText("never-stored"); err != nil {
		t.Errorf("deleting an absent text should succeed, got %v", err)
	}
}

func TestStore_ConcurrentOpenTimesOut(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "locked.db")
	store, err := NewStore(dbPath, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := NewStore(dbPath, 50*time.Millisecond); err == nil {
		t.Error("expected second open of a locked database to fail")
	}
}
