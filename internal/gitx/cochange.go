// Package gitx derives temporal coupling signals from version control
// history. Files that change together in recent commits contribute
// co-change edges to the dependency graph.
package gitx

import (
	"context"
	"fmt"
	"sort"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CochangePair is a pair of files with their coupling strength.
type CochangePair struct {
	PathA    string // lexicographically smaller path
	PathB    string
	Coupling float64 // co-changes / analyzed commits
}

// Options bounds the history analysis.
type Options struct {
	// MaxCommits bounds the history walk (default 1000).
	MaxCommits int
	// Threshold is the minimum coupling to keep a pair (default 0.15).
	Threshold float64
	// MaxFilesPerCommit skips bulk commits (mass renames, vendoring) whose
	// pairs carry no signal.
	MaxFilesPerCommit int
}

// DefaultOptions returns the default analysis bounds.
func DefaultOptions() Options {
	return Options{
		MaxCommits:        1000,
		Threshold:         0.15,
		MaxFilesPerCommit: 50,
	}
}

// AnalyzeCochanges walks up to MaxCommits of history and returns the file
// pairs whose coupling meets the threshold, sorted by descending coupling
// then ascending paths. A missing repository yields no pairs and no error.
func AnalyzeCochanges(ctx context.Context, repoRoot string, opts Options) ([]CochangePair, error) {
	if opts.MaxCommits <= 0 {
		opts.MaxCommits = 1000
	}
	if opts.MaxFilesPerCommit <= 0 {
		opts.MaxFilesPerCommit = 50
	}

	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, nil
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		// Empty repository: nothing to analyze.
		return nil, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walk history: %w", err)
	}
	defer iter.Close()

	pairCounts := make(map[[2]string]int)
	analyzed := 0

	err = iter.ForEach(func(commit *object.Commit) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if analyzed >= opts.MaxCommits {
			return errStopIteration
		}
		analyzed++

		files, err := changedFiles(commit)
		if err != nil || len(files) < 2 || len(files) > opts.MaxFilesPerCommit {
			return nil
		}

		sort.Strings(files)
		for i := 0; i < len(files); i++ {
			for j := i + 1; j < len(files); j++ {
				pairCounts[[2]string{files[i], files[j]}]++
			}
		}
		return nil
	})
	if err != nil && err != errStopIteration {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}

	if analyzed == 0 {
		return nil, nil
	}

	var pairs []CochangePair
	for pair, count := range pairCounts {
		coupling := float64(count) / float64(analyzed)
		if coupling >= opts.Threshold {
			pairs = append(pairs, CochangePair{
				PathA:    pair[0],
				PathB:    pair[1],
				Coupling: coupling,
			})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Coupling != pairs[j].Coupling {
			return pairs[i].Coupling > pairs[j].Coupling
		}
		if pairs[i].PathA != pairs[j].PathA {
			return pairs[i].PathA < pairs[j].PathA
		}
		return pairs[i].PathB < pairs[j].PathB
	})
	return pairs, nil
}

// changedFiles returns the paths touched by a commit.
func changedFiles(commit *object.Commit) ([]string, error) {
	stats, err := commit.Stats()
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(stats))
	for _, stat := range stats {
		if stat.Name != "" {
			files = append(files, stat.Name)
		}
	}
	return files, nil
}

// errStopIteration terminates the commit walk early.
var errStopIteration = fmt.Errorf("stop iteration")
