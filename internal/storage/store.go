// Package storage persists bundled texts and their sections in a bbolt
// database.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultTimeout bounds how long Open waits for the database file lock.
const DefaultTimeout = 1 * time.Second

var (
	textsBucket    = []byte("texts")
	sectionsBucket = []byte("sections")
)

// ErrNotFound is returned for texts and sections that are not stored.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if needed) the database at dbPath. A zero timeout
// selects DefaultTimeout.
func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{textsBucket, sectionsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func textKey(id string) []byte {
	return []byte(strings.ToUpper(strings.TrimSpace(id)))
}

// SaveText stores text and replaces all of its sections. The text's section
// order is taken from sections when it does not list one itself.
func (s *Store) SaveText(text *Text, sections []*Section) error {
	key := textKey(text.ID)
	if len(key) == 0 {
		return fmt.Errorf("saving text: empty id")
	}
	if len(text.SectionIDs) == 0 {
		text.SectionIDs = make([]string, len(sections))
		for i, sec := range sections {
			text.SectionIDs[i] = sec.SectionID
		}
	}
	if text.ImportedAt.IsZero() {
		text.ImportedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(text)
		if err != nil {
			return err
		}
		if err := tx.Bucket(textsBucket).Put(key, data); err != nil {
			return err
		}

		parent := tx.Bucket(sectionsBucket)
		if parent.Bucket(key) != nil {
			if err := parent.DeleteBucket(key); err != nil {
				return err
			}
		}
		b, err := parent.CreateBucket(key)
		if err != nil {
			return err
		}
		for _, sec := range sections {
			sec.TextID = text.ID
			data, err := json.Marshal(sec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(sec.SectionID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetText(id string) (*Text, error) {
	var text Text
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(textsBucket).Get(textKey(id))
		if data == nil {
			return fmt.Errorf("text %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &text)
	})
	if err != nil {
		return nil, err
	}
	return &text, nil
}

// GetAllTexts returns every stored text ordered by id.
func (s *Store) GetAllTexts() ([]*Text, error) {
	var texts []*Text
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(textsBucket).ForEach(func(_ []byte, v []byte) error {
			var text Text
			if err := json.Unmarshal(v, &text); err != nil {
				return err
			}
			texts = append(texts, &text)
			return nil
		})
	})
	sort.Slice(texts, func(i, j int) bool {
		return strings.ToUpper(texts[i].ID) < strings.ToUpper(texts[j].ID)
	})
	return texts, err
}

func (s *Store) GetSection(textID, sectionID string) (*Section, error) {
	var sec Section
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sectionsBucket).Bucket(textKey(textID))
		if b == nil {
			return fmt.Errorf("text %s: %w", textID, ErrNotFound)
		}
		data := b.Get([]byte(sectionID))
		if data == nil {
			return fmt.Errorf("section %s/%s: %w", textID, sectionID, ErrNotFound)
		}
		return json.Unmarshal(data, &sec)
	})
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// GetSections returns the sections of a text in the text's section order.
// Stored sections missing from that order follow in key order.
func (s *Store) GetSections(textID string) ([]*Section, error) {
	text, err := s.GetText(textID)
	if err != nil {
		return nil, err
	}

	rank := make(map[string]int, len(text.SectionIDs))
	for i, id := range text.SectionIDs {
		rank[id] = i
	}

	var sections []*Section
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sectionsBucket).Bucket(textKey(textID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_ []byte, v []byte) error {
			var sec Section
			if err := json.Unmarshal(v, &sec); err != nil {
				return err
			}
			sections = append(sections, &sec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	order := func(id string) int {
		if r, ok := rank[id]; ok {
			return r
		}
		return len(rank)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return order(sections[i].SectionID) < order(sections[j].SectionID)
	})
	return sections, nil
}

// DeleteText removes a text and its sections.
func (s *Store) DeleteText(id string) error {
	key := textKey(id)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(textsBucket).Delete(key); err != nil {
			return err
		}
		parent := tx.Bucket(sectionsBucket)
		if parent.Bucket(key) == nil {
			return nil
		}
		return parent.DeleteBucket(key)
	})
}
