package merge

import "github.com/AmberYZ/investing-agent/internal/similarity"

// entityGroups are mutually exclusive region/entity token groups. Labels
// whose tokens fall into different groups name distinct theses ("china
// consumer" vs "us consumer") and must never merge on similarity alone.
var entityGroups = []map[string]struct{}{
	tokenGroup("china", "chinese"),
	tokenGroup("us", "america", "american"),
	tokenGroup("europe", "european"),
	tokenGroup("japan", "japanese"),
	tokenGroup("uk", "british"),
	tokenGroup("india", "indian"),
	tokenGroup("asia", "asian"),
}

func tokenGroup(tokens ...string) map[string]struct{} {
	group := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		group[token] = struct{}{}
	}
	return group
}

// labelsConflictEntities reports whether two canonical labels imply
// different entity groups. Labels touching no group never conflict.
func labelsConflictEntities(canonA, canonB string) bool {
	tokensA := similarity.TokenSet(canonA)
	tokensB := similarity.TokenSet(canonB)

	groupsA := matchingGroups(tokensA)
	groupsB := matchingGroups(tokensB)
	if len(groupsA) == 0 || len(groupsB) == 0 {
		return false
	}
	if len(groupsA) != len(groupsB) {
		return true
	}
	for idx := range groupsA {
		if _, ok := groupsB[idx]; !ok {
			return true
		}
	}
	return false
}

func matchingGroups(tokens map[string]struct{}) map[int]struct{} {
	matched := map[int]struct{}{}
	for idx, group := range entityGroups {
		if similarity.Intersects(tokens, group) {
			matched[idx] = struct{}{}
		}
	}
	return matched
}
