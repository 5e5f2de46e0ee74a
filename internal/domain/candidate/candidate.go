// Package candidate holds a single backend's raw hit for a query.
package candidate

import (
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/meta"
)

// Candidate is produced by exactly one backend adapter and never mutated
// afterwards; fusion derives RankedResult records instead.
type Candidate struct {
	contentID   string
	contentType domain.ContentType
	title       string
	excerpt     string
	rawScore    float64
	backendID   string
	metadata    map[string]meta.Value
	highlights  []string
}

// New creates a candidate.
func New(
	contentID string,
	contentType domain.ContentType,
	title, excerpt string,
	rawScore float64,
	backendID string,
	metadata map[string]meta.Value,
	highlights []string,
) Candidate {
	return Candidate{
		contentID:   contentID,
		contentType: contentType,
		title:       title,
		excerpt:     excerpt,
		rawScore:    rawScore,
		backendID:   backendID,
		metadata:    metadata,
		highlights:  highlights,
	}
}

// ContentID returns the stable content identifier shared across backends.
func (c *Candidate) ContentID() string { return c.contentID }

// ContentType returns the content classification.
func (c *Candidate) ContentType() domain.ContentType { return c.contentType }

// Title returns the display title.
func (c *Candidate) Title() string { return c.title }

// Excerpt returns the body excerpt.
func (c *Candidate) Excerpt() string { return c.excerpt }

// RawScore returns the backend-native relevance score. Scales differ per
// backend (cosine similarity, activation weight, TF-IDF) and are only
// comparable after fusion normalization.
func (c *Candidate) RawScore() float64 { return c.rawScore }

// BackendID returns the producing backend.
func (c *Candidate) BackendID() string { return c.backendID }

// Metadata returns the typed metadata map.
func (c *Candidate) Metadata() map[string]meta.Value { return c.metadata }

// Meta looks up a single metadata value.
func (c *Candidate) Meta(key string) (meta.Value, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// Highlights returns matched-fragment snippets, if the backend reports them.
func (c *Candidate) Highlights() []string { return c.highlights }
