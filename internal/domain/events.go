package domain

// DocumentEvent is emitted when a document enters or leaves the generation stage.
type DocumentEvent struct {
	DocumentID string
	SourceID   string
	Chunks     int
	Failed     int
	Pairs      int
	Stats      Stats
}

// ChunkEvent is emitted after each chunk finishes generation, successfully or not.
type ChunkEvent struct {
	DocumentID    string
	SequenceIndex int
	Pairs         int
	Err           error
	Stats         Stats
}
