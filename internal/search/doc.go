// Package search runs one text pattern across many repositories.
//
// A search resolves every repository to a commit, asks the searcher backend
// for matches with a bounded pool of workers and returns a single result
// sorted by ascending line match count, then path. The first failing
// repository cancels the rest of the batch and its error is the only thing
// returned; partial results are never returned.
//
// Calls in flight when the batch is canceled are left to finish and their
// output is dropped. All workers have exited by the time Search returns.
package search
