package snap

import (
	"math/rand"
	"sort"
	"time"
)

// Candidate is one upload eligible for the next fauxto, annotated with the
// usage counts the selection ordering needs.
type Candidate struct {
	UploadID      string
	Identity      string
	FilePath      string
	CreatedAt     time.Time
	UsageCount    int // fauxtos this specific upload has been used in
	IdentityUsage int // fauxtos this identity has appeared in
}

// SelectMembers picks up to limit uploads with at most one per identity.
// Identities are preferred by fewest fauxto appearances, then by how long
// their chosen upload has been waiting, remaining ties at random. Within an
// identity the least-used upload wins, oldest first, ties at random.
func SelectMembers(candidates []Candidate, limit int, rng *rand.Rand) []Candidate {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}

	// Shuffling before the stable sorts makes every unordered tie random
	// instead of following insertion order.
	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	best := make(map[string]Candidate, len(pool))
	for _, c := range pool {
		prev, ok := best[c.Identity]
		if !ok || uploadBefore(c, prev) {
			best[c.Identity] = c
		}
	}

	picks := make([]Candidate, 0, len(best))
	for _, c := range pool {
		if b, ok := best[c.Identity]; ok && b.UploadID == c.UploadID {
			picks = append(picks, c)
			delete(best, c.Identity)
		}
	}

	sort.SliceStable(picks, func(i, j int) bool {
		if picks[i].IdentityUsage != picks[j].IdentityUsage {
			return picks[i].IdentityUsage < picks[j].IdentityUsage
		}
		return picks[i].CreatedAt.Before(picks[j].CreatedAt)
	})

	if len(picks) > limit {
		picks = picks[:limit]
	}
	return picks
}

// uploadBefore reports whether a should be chosen over b for the same
// identity. Exact ties are left to the shuffle order.
func uploadBefore(a, b Candidate) bool {
	if a.UsageCount != b.UsageCount {
		return a.UsageCount < b.UsageCount
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
