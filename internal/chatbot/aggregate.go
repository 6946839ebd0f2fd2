package chatbot

import (
	"sort"

	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
)

// Group is the retrieval evidence for one knowledge base entry.
type Group struct {
	KBID string

	// ScoreSum adds every hit for the entry across all query variants.
	// Groups are ranked by it.
	ScoreSum float64

	// MaxScore is the best single hit. Acceptance is gated on it.
	MaxScore float64

	// Example is the first hit that reached MaxScore.
	Example vectorstore.Hit

	// Hits counts the contributing hits.
	Hits int
}

// Aggregate groups hits by kb_id and orders the groups by descending
// ScoreSum. Groups with equal sums keep first-seen order.
func Aggregate(hits []vectorstore.Hit) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, h := range hits {
		score := float64(h.Score)
		i, ok := index[h.Record.KBID]
		if !ok {
			index[h.Record.KBID] = len(groups)
			groups = append(groups, Group{
				KBID:     h.Record.KBID,
				ScoreSum: score,
				MaxScore: score,
				Example:  h,
				Hits:     1,
			})
			continue
		}
		g := &groups[i]
		g.ScoreSum += score
		g.Hits++
		if score > g.MaxScore {
			g.MaxScore = score
			g.Example = h
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].ScoreSum > groups[j].ScoreSum
	})
	return groups
}
