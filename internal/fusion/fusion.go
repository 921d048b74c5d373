// Package fusion implements Reciprocal Rank Fusion (C3): a pure,
// deterministic merge of two independently ranked chunk lists into one.
package fusion

import (
	"math"
	"sort"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// DefaultK is the standard RRF constant balancing rank positions.
const DefaultK = 60

// Fuse merges lexical and dense result lists with Reciprocal Rank Fusion,
// dedups by (doc_id, chunk_id), and returns the top topK RetrievedChunks
// ordered by descending fusion score.
//
// score(chunk) = sum over lists containing it of 1/(kRRF + rank), rank 1-based.
// Ties break by (bm25Rank, denseRank) ascending (absence = +Inf), then by
// lexicographic chunk_id. Display fields are carried from whichever list
// first provided the chunk; lexical wins on conflict.
func Fuse(lexical, dense []model.Chunk, lexScores, denseScores []float64, topK, kRRF int) []model.RetrievedChunk {
	if kRRF <= 0 {
		kRRF = DefaultK
	}

	type entry struct {
		chunk       model.Chunk
		fusionScore float64
		bm25Rank    int
		bm25Score   float64
		denseRank   int
		denseScore  float64
	}

	byKey := make(map[string]*entry)
	var order []string

	// Lexical runs first so a chunk present in both lists keeps its
	// lexical display fields (lexical wins on conflict).
	for i, c := range lexical {
		rank := i + 1
		key := c.Key()
		e, ok := byKey[key]
		if !ok {
			e = &entry{chunk: c}
			byKey[key] = e
			order = append(order, key)
		}
		e.bm25Rank = rank
		if i < len(lexScores) {
			e.bm25Score = lexScores[i]
		}
		e.fusionScore += 1.0 / float64(kRRF+rank)
	}

	for i, c := range dense {
		rank := i + 1
		key := c.Key()
		e, ok := byKey[key]
		if !ok {
			e = &entry{chunk: c}
			byKey[key] = e
			order = append(order, key)
		}
		e.denseRank = rank
		if i < len(denseScores) {
			e.denseScore = denseScores[i]
		}
		e.fusionScore += 1.0 / float64(kRRF+rank)
	}

	entries := make([]*entry, 0, len(order))
	for _, key := range order {
		entries = append(entries, byKey[key])
	}

	rankOrInf := func(r int) float64 {
		if r == 0 {
			return math.Inf(1)
		}
		return float64(r)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.fusionScore != b.fusionScore {
			return a.fusionScore > b.fusionScore
		}
		if ab, bb := rankOrInf(a.bm25Rank), rankOrInf(b.bm25Rank); ab != bb {
			return ab < bb
		}
		if ad, bd := rankOrInf(a.denseRank), rankOrInf(b.denseRank); ad != bd {
			return ad < bd
		}
		return a.chunk.ChunkID < b.chunk.ChunkID
	})

	if topK > 0 && topK < len(entries) {
		entries = entries[:topK]
	}

	results := make([]model.RetrievedChunk, len(entries))
	for i, e := range entries {
		results[i] = model.RetrievedChunk{
			Chunk:       e.chunk,
			FusionScore: e.fusionScore,
			BM25Rank:    e.bm25Rank,
			BM25Score:   e.bm25Score,
			DenseRank:   e.denseRank,
			DenseScore:  e.denseScore,
		}
	}
	return results
}
