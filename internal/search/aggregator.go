package search

import "sort"

// aggregate collects every batch sent on in and, once in is closed, sends the
// sorted concatenation on the returned channel exactly once.
func aggregate(in <-chan []RepoMatch) <-chan []RepoMatch {
	out := make(chan []RepoMatch, 1)
	go func() {
		defer close(out)
		matches := make([]RepoMatch, 0)
		for batch := range in {
			matches = append(matches, batch...)
		}
		SortMatches(matches)
		out <- matches
	}()
	return out
}

// SortMatches orders matches by ascending line match count, then path.
//
// Equal count and path fall back to repository and commit so the order never
// depends on arrival order.
func SortMatches(matches []RepoMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return lessMatch(matches[i], matches[j])
	})
}

func lessMatch(a, b RepoMatch) bool {
	if la, lb := len(a.LineMatches), len(b.LineMatches); la != lb {
		return la < lb
	}
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Repo != b.Repo {
		return a.Repo < b.Repo
	}
	return a.Commit < b.Commit
}
