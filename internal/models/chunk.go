package models

import "time"

// Classification is the structural class assigned to a page of text before chunking.
type Classification string

const (
	ClassContent  Classification = "content"
	ClassAbstract Classification = "abstract"
	ClassTable    Classification = "table"
	ClassSkipped  Classification = "skipped"
)

// Strategy records which splitting rule produced a chunk.
type Strategy string

const (
	StrategySingleAbstract Strategy = "single_abstract"
	StrategySingleTable    Strategy = "single_table"
	StrategyAdvisory       Strategy = "advisory_guided"
	StrategyFixedStride    Strategy = "fixed_stride"
)

// Page is the extracted text of one document page plus its source metadata.
type Page struct {
	Text       string    `json:"text"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	Filename   string    `json:"filename"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	HasTable   bool      `json:"has_table"`
}

// Chunk represents a stored span of page text with metadata
type Chunk struct {
	ID              string         `json:"id"`
	Content         string         `json:"content"`
	Filename        string         `json:"filename"`
	Source          string         `json:"source"`
	Page            int            `json:"page"`
	TotalPages      int            `json:"total_pages"`
	Section         string         `json:"section,omitempty"`
	Classification  Classification `json:"classification"`
	Strategy        Strategy       `json:"chunk_strategy"`
	Index           int            `json:"chunk_id"`
	TotalChunks     int            `json:"total_chunks"`
	HasTable        bool           `json:"has_table"`
	Reference       string         `json:"reference,omitempty"`
	PublicationYear string         `json:"publication_year,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ChunkRecord is the on-disk shape of an exported chunk.
type ChunkRecord struct {
	Content       string `json:"content"`
	Metadata      Chunk  `json:"metadata"`
	ContentLength int    `json:"content_length"`
	ChunkStrategy string `json:"chunk_strategy"`
}

// NewChunkRecord wraps a chunk for JSON export.
func NewChunkRecord(c Chunk) ChunkRecord {
	return ChunkRecord{
		Content:       c.Content,
		Metadata:      c,
		ContentLength: len([]rune(c.Content)),
		ChunkStrategy: string(c.Strategy),
	}
}
