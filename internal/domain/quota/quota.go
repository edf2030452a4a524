// Package quota distributes a budget of question/answer pairs across scored
// items (source files, issues) in proportion to their priority.
//
// Allocate is pure: it performs no I/O, keeps no state between calls, and is
// deterministic for identical inputs. Shares are computed with exact rational
// arithmetic so the sum invariant never depends on floating-point rounding.
package quota

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
)

// Sentinel errors returned by Allocate for invalid input.
var (
	// ErrInvalidQuota indicates a negative quota.
	ErrInvalidQuota = errors.New("invalid quota")

	// ErrInvalidCap indicates a per-item cap below 1 when capping is requested.
	ErrInvalidCap = errors.New("invalid cap")

	// ErrDuplicateIdentifier indicates two items share an identifier.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrInvalidScore indicates a NaN or infinite priority score.
	ErrInvalidScore = errors.New("invalid score")
)

// CapPolicy selects whether per-item counts are bounded.
// The zero value is Uncapped.
type CapPolicy struct {
	capped bool
	limit  int
}

// Uncapped returns a policy that places no upper bound on any item.
func Uncapped() CapPolicy {
	return CapPolicy{}
}

// CappedAt returns a policy that bounds every item's count at n.
func CappedAt(n int) CapPolicy {
	return CapPolicy{capped: true, limit: n}
}

// Limit returns the cap and whether one applies.
func (p CapPolicy) Limit() (int, bool) {
	return p.limit, p.capped
}

// String returns "uncapped" or "capped(n)".
func (p CapPolicy) String() string {
	if !p.capped {
		return "uncapped"
	}
	return fmt.Sprintf("capped(%d)", p.limit)
}

// Item is a unit of work with a priority score. K is the identifier type:
// file paths use string, issue numbers use int.
type Item[K cmp.Ordered] struct {
	ID    K
	Score float64
}

// Options controls a single allocation.
type Options struct {
	// Quota is the total number of pairs to distribute. Must be >= 0.
	Quota int

	// Cap bounds each item's count. Defaults to Uncapped.
	Cap CapPolicy

	// MinimumOne guarantees every positive-score item at least one pair when
	// the quota allows it. When the quota is smaller than the number of such
	// items, the highest ranked items receive one each and the rest zero.
	MinimumOne bool
}

// Summary describes an allocation for logging and run records.
type Summary struct {
	TotalAllocated int `json:"total_allocated"`
	ItemsAtZero    int `json:"items_at_zero"`
	ItemsAtCap     int `json:"items_at_cap"`
}

// Result maps every input identifier to its count.
type Result[K cmp.Ordered] struct {
	Counts  map[K]int
	Summary Summary
}

// Allocate computes how many pairs each item should receive. Every input item
// appears in the result, including those with a zero count.
func Allocate[K cmp.Ordered](items []Item[K], opts Options) (Result[K], error) {
	if err := validate(items, opts); err != nil {
		return Result[K]{}, err
	}

	counts := make(map[K]int, len(items))
	for _, it := range items {
		counts[it.ID] = 0
	}

	ranked := rankEligible(items)
	switch {
	case opts.Quota == 0 || len(ranked) == 0:
	case opts.MinimumOne && opts.Quota < len(ranked):
		for _, it := range ranked[:opts.Quota] {
			counts[it.ID] = 1
		}
	default:
		apportion(ranked, opts, counts)
	}

	res := Result[K]{Counts: counts, Summary: summarize(counts, opts.Cap)}
	mustBeConsistent(res, opts)
	return res, nil
}

func validate[K cmp.Ordered](items []Item[K], opts Options) error {
	if opts.Quota < 0 {
		return fmt.Errorf("quota %d: %w", opts.Quota, ErrInvalidQuota)
	}
	if limit, capped := opts.Cap.Limit(); capped && limit < 1 {
		return fmt.Errorf("cap %d: %w", limit, ErrInvalidCap)
	}

	seen := make(map[K]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("item %v: %w", it.ID, ErrDuplicateIdentifier)
		}
		seen[it.ID] = struct{}{}

		if math.IsNaN(it.Score) || math.IsInf(it.Score, 0) {
			return fmt.Errorf("item %v score %v: %w", it.ID, it.Score, ErrInvalidScore)
		}
	}
	return nil
}

// rankEligible returns the positive-score items ordered by score descending,
// identifier ascending.
func rankEligible[K cmp.Ordered](items []Item[K]) []Item[K] {
	ranked := make([]Item[K], 0, len(items))
	for _, it := range items {
		if it.Score > 0 {
			ranked = append(ranked, it)
		}
	}
	slices.SortFunc(ranked, compareRank[K])
	return ranked
}

func compareRank[K cmp.Ordered](a, b Item[K]) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// share is the working state of one eligible item.
type share[K cmp.Ordered] struct {
	item   Item[K]
	weight *big.Rat
	value  *big.Rat
	fixed  bool
}

// apportion distributes opts.Quota across ranked items. Continuous shares are
// solved first within the bounds [lo, hi], then converted to whole counts with
// the largest-remainder method.
func apportion[K cmp.Ordered](ranked []Item[K], opts Options, counts map[K]int) {
	lo := new(big.Rat)
	if opts.MinimumOne {
		lo.SetInt64(1)
	}
	var hi *big.Rat
	if limit, capped := opts.Cap.Limit(); capped {
		hi = big.NewRat(int64(limit), 1)
	}

	shares := make([]*share[K], len(ranked))
	for i, it := range ranked {
		shares[i] = &share[K]{item: it, weight: new(big.Rat).SetFloat64(it.Score)}
	}

	solveBounded(shares, big.NewRat(int64(opts.Quota), 1), lo, hi)
	largestRemainder(shares, counts)
}

// solveBounded finds value_i = clamp(λ·weight_i, lo, hi) with the values summing
// to total, or every value at hi when the caps cannot absorb total.
//
// Each round spreads the pool left by fixed items over the free ones. If the
// amount pushed above hi is at least the amount missing below lo, every item
// above hi is bounded in the final solution too and is fixed there; otherwise
// the items below lo are. At least one item is fixed per round.
func solveBounded[K cmp.Ordered](shares []*share[K], total, lo, hi *big.Rat) {
	for {
		pool := new(big.Rat).Set(total)
		weight := new(big.Rat)
		free := make([]*share[K], 0, len(shares))
		for _, s := range shares {
			if s.fixed {
				pool.Sub(pool, s.value)
				continue
			}
			weight.Add(weight, s.weight)
			free = append(free, s)
		}
		if len(free) == 0 {
			return
		}

		var over, under []*share[K]
		excess, deficit := new(big.Rat), new(big.Rat)
		for _, s := range free {
			v := new(big.Rat).Mul(s.weight, pool)
			v.Quo(v, weight)
			s.value = v

			switch {
			case hi != nil && v.Cmp(hi) > 0:
				over = append(over, s)
				excess.Add(excess, new(big.Rat).Sub(v, hi))
			case v.Cmp(lo) < 0:
				under = append(under, s)
				deficit.Add(deficit, new(big.Rat).Sub(lo, v))
			}
		}

		switch {
		case len(over) == 0 && len(under) == 0:
			return
		case len(over) > 0 && (len(under) == 0 || excess.Cmp(deficit) >= 0):
			for _, s := range over {
				s.value = new(big.Rat).Set(hi)
				s.fixed = true
			}
		default:
			for _, s := range under {
				s.value = new(big.Rat).Set(lo)
				s.fixed = true
			}
		}
	}
}

// largestRemainder floors every share and hands the leftover units to the
// shares with the largest fractional parts. Ties go to the higher score, then
// the lower identifier.
func largestRemainder[K cmp.Ordered](shares []*share[K], counts map[K]int) {
	type remainder struct {
		s    *share[K]
		frac *big.Rat
	}

	total := new(big.Rat)
	floored := 0
	rems := make([]remainder, 0, len(shares))
	for _, s := range shares {
		total.Add(total, s.value)

		whole := new(big.Int).Quo(s.value.Num(), s.value.Denom())
		n := int(whole.Int64())
		counts[s.item.ID] = n
		floored += n

		frac := new(big.Rat).Sub(s.value, new(big.Rat).SetInt(whole))
		rems = append(rems, remainder{s: s, frac: frac})
	}

	// total is integral: either the quota or a sum of integral bounds.
	leftover := int(new(big.Int).Quo(total.Num(), total.Denom()).Int64()) - floored
	if leftover <= 0 {
		return
	}

	slices.SortFunc(rems, func(a, b remainder) int {
		if c := b.frac.Cmp(a.frac); c != 0 {
			return c
		}
		return compareRank(a.s.item, b.s.item)
	})
	for _, r := range rems[:leftover] {
		counts[r.s.item.ID]++
	}
}

func summarize[K cmp.Ordered](counts map[K]int, policy CapPolicy) Summary {
	limit, capped := policy.Limit()
	var sum Summary
	for _, n := range counts {
		sum.TotalAllocated += n
		if n == 0 {
			sum.ItemsAtZero++
		}
		if capped && n == limit {
			sum.ItemsAtCap++
		}
	}
	return sum
}

// mustBeConsistent panics if the allocation breaks an invariant. A violation is
// a bug in this package, never a consequence of caller input.
func mustBeConsistent[K cmp.Ordered](res Result[K], opts Options) {
	if res.Summary.TotalAllocated > opts.Quota {
		panic(fmt.Sprintf("quota: allocated %d exceeds quota %d", res.Summary.TotalAllocated, opts.Quota))
	}
	limit, capped := opts.Cap.Limit()
	for id, n := range res.Counts {
		if n < 0 {
			panic(fmt.Sprintf("quota: item %v has negative count %d", id, n))
		}
		if capped && n > limit {
			panic(fmt.Sprintf("quota: item %v count %d exceeds cap %d", id, n, limit))
		}
	}
}
