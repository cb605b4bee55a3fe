// Package resolver decides which active project an inbound transaction
// belongs to. It is a pure function over the candidate snapshot; callers fetch
// the account's active projects first.
package resolver

import (
	"strings"

	"github.com/gasto-obra/backend/internal/domain"
)

// Resolve picks the best-matching project, first match wins:
//
//  1. exact case-insensitive tag match against explicitTag,
//  2. fuzzy match of the free-text reference (see MatchReference),
//  3. the sole active project, when the account has exactly one,
//  4. nil - the caller must ask the user to disambiguate.
func Resolve(explicitTag, reference string, candidates []domain.Project) *domain.Project {
	if explicitTag != "" {
		if p := matchTag(explicitTag, candidates); p != nil {
			return p
		}
	}

	if reference != "" {
		if p := MatchReference(reference, candidates); p != nil {
			return p
		}
	}

	if len(candidates) == 1 {
		return &candidates[0]
	}

	return nil
}

func matchTag(tag string, candidates []domain.Project) *domain.Project {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for i := range candidates {
		if strings.ToLower(candidates[i].Tag) == tag {
			return &candidates[i]
		}
	}
	return nil
}

// MatchReference matches an assistant-inferred project mention against the
// candidates. Voice and photo references are noisy ("la obra de flores", "en
// flores 3b"), so it degrades from exact tag equality through substring and
// word overlap. Tiers, first match wins:
//
//	a) project tag equals the lower-cased, trimmed reference,
//	b) project tag contained in the reference,
//	c) project name contained in, or containing, the reference,
//	d) any reference word longer than 2 runes overlapping any name word.
func MatchReference(reference string, candidates []domain.Project) *domain.Project {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if ref == "" {
		return nil
	}

	for i := range candidates {
		if strings.ToLower(candidates[i].Tag) == ref {
			return &candidates[i]
		}
	}

	for i := range candidates {
		if strings.Contains(ref, strings.ToLower(candidates[i].Tag)) {
			return &candidates[i]
		}
	}

	for i := range candidates {
		name := strings.ToLower(candidates[i].Name)
		if strings.Contains(ref, name) || strings.Contains(name, ref) {
			return &candidates[i]
		}
	}

	refWords := significantWords(ref)
	for i := range candidates {
		nameWords := strings.Fields(strings.ToLower(candidates[i].Name))
		for _, rw := range refWords {
			for _, nw := range nameWords {
				if strings.Contains(nw, rw) || strings.Contains(rw, nw) {
					return &candidates[i]
				}
			}
		}
	}

	return nil
}

func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) > 2 {
			words = append(words, w)
		}
	}
	return words
}
