package reconciliation

import (
	"strings"
	"time"
	"unicode"
)

const DefaultDateWindow = 3 * 24 * time.Hour

// HeuristicScorer accepts a candidate only on an exact amount inside the date
// window, then ranks candidates by payee/employee name overlap.
type HeuristicScorer struct {
	DateWindow time.Duration
}

func NewHeuristicScorer(window time.Duration) HeuristicScorer {
	if window <= 0 {
		window = DefaultDateWindow
	}
	return HeuristicScorer{DateWindow: window}
}

func (h HeuristicScorer) Score(line BankLine, expected ExpectedPayment) float64 {
	if !line.Amount.Equal(expected.Amount) {
		return 0
	}
	if expected.PaymentDate != nil {
		diff := line.ValueDate.Sub(*expected.PaymentDate)
		if diff < 0 {
			diff = -diff
		}
		if diff > h.DateWindow {
			return 0
		}
	}
	return 0.5 + 0.5*nameOverlap(line.Payee, expected.EmployeeName)
}

// nameOverlap is the Jaccard index of the two names' word sets
func nameOverlap(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func tokens(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
