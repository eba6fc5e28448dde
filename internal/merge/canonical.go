package merge

import (
	"strings"

	"github.com/AmberYZ/investing-agent/internal/similarity"
)

// pickCanonical chooses the surviving theme for a merge set. The rules favor
// broader labels, then busier themes, then the oldest id, and are
// deterministic so candidate discovery is idempotent across re-runs.
func pickCanonical(themes []Theme) int64 {
	if len(themes) == 0 {
		return 0
	}
	if len(themes) == 1 {
		return themes[0].ID
	}

	// 1) Proper substring: the shorter label is the broader theme.
	for i := range themes {
		for j := range themes {
			if i == j {
				continue
			}
			a, b := themes[i].CanonicalLabel, themes[j].CanonicalLabel
			if strings.Contains(b, a) && len(a) < len(b) {
				return themes[i].ID
			}
		}
	}

	// 2) Fewer tokens than the widest label in the set.
	tokenCounts := make([]int, len(themes))
	maxTokens := 0
	for i := range themes {
		tokenCounts[i] = len(similarity.TokenSet(themes[i].CanonicalLabel))
		if tokenCounts[i] > maxTokens {
			maxTokens = tokenCounts[i]
		}
	}
	bestIdx := 0
	for i := 1; i < len(themes); i++ {
		if tokenCounts[i] < tokenCounts[bestIdx] ||
			(tokenCounts[i] == tokenCounts[bestIdx] && themes[i].ID < themes[bestIdx].ID) {
			bestIdx = i
		}
	}
	if tokenCounts[bestIdx] < maxTokens {
		return themes[bestIdx].ID
	}

	// 3) Most narratives, then most evidence. 4) Oldest id.
	best := themes[0]
	for _, candidate := range themes[1:] {
		if candidate.NarrativeCount > best.NarrativeCount ||
			(candidate.NarrativeCount == best.NarrativeCount && candidate.EvidenceCount > best.EvidenceCount) ||
			(candidate.NarrativeCount == best.NarrativeCount && candidate.EvidenceCount == best.EvidenceCount && candidate.ID < best.ID) {
			best = candidate
		}
	}
	return best.ID
}
