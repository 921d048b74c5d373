// Package model defines the data types shared across the query-time core:
// chunks, per-query retrieval results, and the answer/abstention response.
package model

// Chunk is an addressable piece of text belonging to a parent document —
// the unit of retrieval. Two chunks with equal ChunkID must refer to
// identical text.
type Chunk struct {
	DocID     string    `json:"docId"`
	ChunkID   string    `json:"chunkId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Section   string    `json:"section,omitempty"`
	Lang      string    `json:"lang,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	Embedding []float32 `json:"-"`
}

// RetrievedChunk is a Chunk carrying per-query scoring. Ranks are 1-based;
// a zero rank signals absence from that backend's result set.
type RetrievedChunk struct {
	Chunk
	FusionScore  float64 `json:"fusionScore"`
	BM25Rank     int     `json:"bm25Rank,omitempty"`
	BM25Score    float64 `json:"bm25Score,omitempty"`
	DenseRank    int     `json:"denseRank,omitempty"`
	DenseScore   float64 `json:"denseScore,omitempty"`
	RerankScore  float64 `json:"rerankScore,omitempty"`
}

// Key returns the dedup/identity key for a chunk: (doc_id, chunk_id).
func (c Chunk) Key() string {
	return c.DocID + "\x00" + c.ChunkID
}

// Filters is the parsed conjunctive filter map produced from the
// "k1:v1,k2:v2" filter-string grammar. Only "lang" and "tags" are
// recognized by the backends; the map may hold other keys, which the
// backends' filter builders silently ignore.
type Filters map[string]string

// Facets maps a facet field name ("lang", "tags") to value→count.
type Facets map[string]map[string]int
