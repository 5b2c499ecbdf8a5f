package recognition

import (
	"cmp"
	"slices"

	"github.com/kozaktomas/face-registry/internal/index"
)

// SearchWidth is the number of nearest neighbors fetched for one query:
// maxWidth, bounded by the number of distinct enrolled identities.
func SearchWidth(identities, maxWidth int) int {
	return min(maxWidth, identities)
}

// Rank turns raw nearest-neighbor hits into the candidate list. Hits below
// threshold are dropped, each owner keeps only its best score, and at most
// maxResults owners are returned by descending score. Owners with equal
// scores keep the order of their first hit.
func Rank(hits []index.Result, threshold float32, maxResults int) []index.Result {
	type best struct {
		result index.Result
		first  int
	}

	byOwner := make(map[string]*best)
	var ranked []*best
	for i, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		if b, ok := byOwner[hit.OwnerID]; ok {
			if hit.Score > b.result.Score {
				b.result.Score = hit.Score
			}
			continue
		}
		b := &best{result: hit, first: i}
		byOwner[hit.OwnerID] = b
		ranked = append(ranked, b)
	}

	slices.SortFunc(ranked, func(a, b *best) int {
		if c := cmp.Compare(b.result.Score, a.result.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.first, b.first)
	})

	if maxResults >= 0 && len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	out := make([]index.Result, len(ranked))
	for i, b := range ranked {
		out[i] = b.result
	}
	return out
}
