package domain

import (
	"fmt"
	"time"
)

// OriginType names the kind of collaborator that produced a document's text.
type OriginType string

const (
	OriginText OriginType = "text"
	OriginFile OriginType = "file"
	OriginWeb  OriginType = "web"
)

// Origin carries the metadata supplied by the extraction collaborator.
type Origin struct {
	SourceID string
	Type     OriginType
	Location string
	Title    string
}

// SourceDocument is normalized input text. It is never modified once ingested.
type SourceDocument struct {
	ID      string
	RawText string
	Origin  Origin
}

// SourceID falls back to the document ID when the collaborator supplied none.
func (d SourceDocument) SourceID() string {
	if d.Origin.SourceID != "" {
		return d.Origin.SourceID
	}
	return d.ID
}

// Range is a half-open byte range [Start, End) into SourceDocument.RawText.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (r Range) Len() int {
	return r.End - r.Start
}

// Chunk is a bounded slice of a document sized for one prompt.
type Chunk struct {
	DocumentID    string
	SequenceIndex int
	Text          string
	Range         Range
}

// ID identifies the chunk within a run.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.DocumentID, c.SequenceIndex)
}

// Tier is the quality bucket of a generated pair.
type Tier string

const (
	TierHigh     Tier = "HIGH"
	TierMedium   Tier = "MEDIUM"
	TierRejected Tier = "REJECTED"
)

// QAPair is a candidate produced by the model client and curated downstream.
type QAPair struct {
	ID             string
	ChunkID        string
	DocumentID     string
	SequenceIndex  int
	PairIndex      int
	Question       string
	Answer         string
	RawModelOutput string
	QualityScore   float64
	Scored         bool
	Tier           Tier
}

// DatasetRecord is the serialized form of an accepted pair.
type DatasetRecord struct {
	ID           string     `json:"id"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	QualityScore float64    `json:"quality_score"`
	Tier         Tier       `json:"tier"`
	SourceID     string     `json:"source_id"`
	OriginType   OriginType `json:"origin_type,omitempty"`
	ChunkIndex   int        `json:"chunk_index"`
	Timestamp    time.Time  `json:"timestamp"`
}
