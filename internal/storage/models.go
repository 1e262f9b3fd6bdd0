package storage

import (
	"time"
)

// Text is a bundled text as stored in the texts bucket.
type Text struct {
	ID            string    `json:"id"`
	Abbreviation  string    `json:"abbreviation"`
	Name          string    `json:"name"`
	LocalName     string    `json:"local_name"`
	ShortName     string    `json:"short_name"`
	LanguageCode  string    `json:"language_code"`
	LanguageName  string    `json:"language_name"`
	Divisions     []string  `json:"divisions"`
	DivisionNames []string  `json:"division_names"`
	SectionIDs    []string  `json:"section_ids"`
	HasAudio      bool      `json:"has_audio"`
	ImportedAt    time.Time `json:"imported_at"`
}

// Section is one stored section of a text.
type Section struct {
	TextID    string `json:"text_id"`
	SectionID string `json:"section_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Format    string `json:"format"`
	AudioURL  string `json:"audio_url,omitempty"`
}
