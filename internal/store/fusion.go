package store

import "sort"

// RRFConstant is the k in the reciprocal rank fusion formula 1/(k+rank).
// 60 is the value from the original RRF paper and keeps single-list
// top ranks from dominating the merge.
const RRFConstant = 60

// FuseRRF merges ranked result lists with reciprocal rank fusion: each
// occurrence of a chunk contributes 1/(k+rank) with rank starting at 1, so
// chunks found by both retrieval paths outrank chunks found by one. The
// fused Score replaces the per-list scores; metadata and text come from the
// first list that produced the chunk. Ties break on vector_id ascending to
// keep the ordering deterministic. limit <= 0 returns everything.
func FuseRRF(lists [][]SearchResult, limit int) []SearchResult {
	scores := make(map[string]float64)
	byID := make(map[string]SearchResult)

	for _, list := range lists {
		for i, r := range list {
			scores[r.VectorID] += 1.0 / float64(RRFConstant+i+1)
			if _, seen := byID[r.VectorID]; !seen {
				byID[r.VectorID] = r
			}
		}
	}

	fused := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		r := byID[id]
		r.Score = score
		fused = append(fused, r)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].VectorID < fused[j].VectorID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
