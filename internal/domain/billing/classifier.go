// Package billing decides a student's financial standing from the billing
// periods they have paid for.
package billing

import (
	"strings"

	"github.com/schoolhub/schoolhub/internal/domain/student"
)

// Classify maps a set of paid periods to a financial status.
//
//   - no paid periods: pending
//   - every period in periods[0..currentIndex] paid: paid
//   - otherwise: late
//
// A negative currentIndex means nothing is due yet. An index past the end of
// periods is clamped to the last period. Paid identifiers that are not in
// periods never make a student late or paid; they are simply not matched.
func Classify(paid []string, periods []string, currentIndex int) student.FinancialStatus {
	if len(normalize(paid)) == 0 {
		return student.FinancialPending
	}
	if currentIndex < 0 || len(periods) == 0 {
		return student.FinancialPaid
	}
	if currentIndex >= len(periods) {
		currentIndex = len(periods) - 1
	}

	have := make(map[string]struct{}, len(paid))
	for _, p := range paid {
		have[key(p)] = struct{}{}
	}
	for _, due := range periods[:currentIndex+1] {
		if _, ok := have[key(due)]; !ok {
			return student.FinancialLate
		}
	}
	return student.FinancialPaid
}

// MergePeriods returns the set union of existing and incoming. Existing
// entries keep their order, new ones are appended in arrival order, blanks
// are dropped and duplicates (case-insensitive) collapse to the first spelling.
func MergePeriods(existing, incoming []string) []string {
	out := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, dup := seen[key(p)]; dup {
				continue
			}
			seen[key(p)] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// normalize dedupes a single list.
func normalize(periods []string) []string {
	return MergePeriods(nil, periods)
}

func key(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
