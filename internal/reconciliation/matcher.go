// Package reconciliation matches a bank statement against the payroll payments
// expected for a cycle. It is pure: no storage, no clock, stable output order.
package reconciliation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMalformedLedger = errors.New("malformed ledger")

// Amounts are stored as numeric(15,2): at most two decimals and below 10^13.
const amountScale = 2

var maxAmount = decimal.New(1, 13)

type ItemStatus string

const (
	StatusMatched        ItemStatus = "matched"
	StatusAmountMismatch ItemStatus = "amount_mismatch"
	StatusMissingInBank  ItemStatus = "missing_in_bank"
	StatusMissingInERP   ItemStatus = "missing_in_erp"
	StatusDuplicate      ItemStatus = "duplicate"
	StatusResolved       ItemStatus = "resolved"
)

// BankLine is one row of the bank statement
type BankLine struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	ValueDate time.Time       `json:"valueDate"`
	Payee     string          `json:"payee,omitempty"`
}

// ExpectedPayment is one payroll payment the ERP expects to see on the statement
type ExpectedPayment struct {
	PayslipID    string          `json:"payslipId"`
	EmployeeID   string          `json:"employeeId"`
	EmployeeName string          `json:"employeeName,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	UTR          string          `json:"utr,omitempty"`
	PaymentDate  *time.Time      `json:"paymentDate,omitempty"`
}

// Item is one pairing, or non-pairing, produced by a matching pass
type Item struct {
	Status        ItemStatus
	Bank          *BankLine
	Expected      *ExpectedPayment
	LowConfidence bool
	Score         float64
	Note          string
}

// Difference is bank minus ERP; zero when either side is absent
func (i Item) Difference() decimal.Decimal {
	if i.Bank == nil || i.Expected == nil {
		return decimal.Zero
	}
	return i.Bank.Amount.Sub(i.Expected.Amount)
}

type Summary struct {
	Total          int `json:"total"`
	Matched        int `json:"matched"`
	AmountMismatch int `json:"amountMismatch"`
	MissingInBank  int `json:"missingInBank"`
	MissingInERP   int `json:"missingInErp"`
	Duplicate      int `json:"duplicate"`
}

type Result struct {
	Items   []Item
	Summary Summary
}

// NeedsFollowUp reports whether any item still requires a human decision
func (r *Result) NeedsFollowUp() bool {
	return r.Summary.Total != r.Summary.Matched
}

// Scorer rates how plausibly a bank line pays an expected payment.
// Zero means "not a candidate"; higher is better.
type Scorer interface {
	Score(line BankLine, expected ExpectedPayment) float64
}

type Matcher struct {
	scorer Scorer
}

func NewMatcher(scorer Scorer) *Matcher {
	return &Matcher{scorer: scorer}
}

// NormalizeReference makes references comparable across ledgers
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

// Match runs the auto-match pass. Exact reference matches are decided first;
// leftover bank lines then try a secondary match through the scorer against
// expected payments that carry no reference.
func (m *Matcher) Match(bank []BankLine, expected []ExpectedPayment) (*Result, error) {
	if err := validate(bank, expected); err != nil {
		return nil, err
	}

	primary, duplicates := indexBank(bank)
	consumed := make([]bool, len(bank))
	var items []Item

	// exact reference pass, in expected order
	var pool []int
	for i := range expected {
		exp := &expected[i]
		utr := NormalizeReference(exp.UTR)
		if utr == "" {
			pool = append(pool, i)
			continue
		}
		b, ok := primary[utr]
		if !ok {
			items = append(items, Item{Status: StatusMissingInBank, Expected: exp})
			continue
		}
		if consumed[b] {
			items = append(items, Item{
				Status:   StatusDuplicate,
				Expected: exp,
				Note:     fmt.Sprintf("reference %s already claimed by another payment", utr),
			})
			continue
		}
		consumed[b] = true
		line := &bank[b]
		if line.Amount.Equal(exp.Amount) {
			items = append(items, Item{Status: StatusMatched, Bank: line, Expected: exp, Score: 1})
		} else {
			items = append(items, Item{Status: StatusAmountMismatch, Bank: line, Expected: exp})
		}
	}

	// secondary pass over the remaining bank lines, in bank order
	for b := range bank {
		line := &bank[b]
		if duplicates[b] {
			items = append(items, Item{
				Status: StatusDuplicate,
				Bank:   line,
				Note:   fmt.Sprintf("duplicate bank posting of reference %s", NormalizeReference(line.Reference)),
			})
			continue
		}
		if consumed[b] {
			continue
		}
		if pos, score, ok := m.bestCandidate(*line, expected, pool); ok {
			consumed[b] = true
			items = append(items, Item{
				Status:        StatusMatched,
				Bank:          line,
				Expected:      &expected[pool[pos]],
				LowConfidence: true,
				Score:         score,
			})
			pool = append(pool[:pos], pool[pos+1:]...)
			continue
		}
		items = append(items, Item{Status: StatusMissingInERP, Bank: line})
	}

	for _, i := range pool {
		items = append(items, Item{Status: StatusMissingInBank, Expected: &expected[i]})
	}

	return &Result{Items: items, Summary: Summarize(items)}, nil
}

// bestCandidate returns the pool position with a strictly highest positive score
func (m *Matcher) bestCandidate(line BankLine, expected []ExpectedPayment, pool []int) (int, float64, bool) {
	if m.scorer == nil {
		return 0, 0, false
	}
	best, bestScore, runnerUp := -1, 0.0, 0.0
	for pos, i := range pool {
		s := m.scorer.Score(line, expected[i])
		if s <= 0 {
			continue
		}
		switch {
		case s > bestScore:
			runnerUp = bestScore
			best, bestScore = pos, s
		case s > runnerUp:
			runnerUp = s
		}
	}
	if best < 0 || bestScore == runnerUp {
		return 0, 0, false
	}
	return best, bestScore, true
}

// indexBank maps each reference to its chronologically first line and marks the rest as duplicates
func indexBank(bank []BankLine) (map[string]int, []bool) {
	order := make([]int, len(bank))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bank[order[a]].ValueDate.Before(bank[order[b]].ValueDate)
	})

	primary := make(map[string]int, len(bank))
	duplicates := make([]bool, len(bank))
	for _, i := range order {
		ref := NormalizeReference(bank[i].Reference)
		if ref == "" {
			continue
		}
		if _, seen := primary[ref]; seen {
			duplicates[i] = true
			continue
		}
		primary[ref] = i
	}
	return primary, duplicates
}

func checkAmount(a decimal.Decimal) error {
	switch {
	case !a.IsPositive():
		return fmt.Errorf("has non-positive amount %s", a)
	case !a.Equal(a.Truncate(amountScale)):
		return fmt.Errorf("amount %s has more than %d decimal places", a, amountScale)
	case a.GreaterThanOrEqual(maxAmount):
		return fmt.Errorf("amount %s is out of range", a)
	}
	return nil
}

func validate(bank []BankLine, expected []ExpectedPayment) error {
	for i, line := range bank {
		if err := checkAmount(line.Amount); err != nil {
			return fmt.Errorf("%w: bank line %d %s", ErrMalformedLedger, i, err)
		}
		if line.ValueDate.IsZero() {
			return fmt.Errorf("%w: bank line %d has no value date", ErrMalformedLedger, i)
		}
	}
	for i, exp := range expected {
		if err := checkAmount(exp.Amount); err != nil {
			return fmt.Errorf("%w: payment %d %s", ErrMalformedLedger, i, err)
		}
		if strings.TrimSpace(exp.PayslipID) == "" && strings.TrimSpace(exp.EmployeeID) == "" {
			return fmt.Errorf("%w: payment %d has neither payslip nor employee", ErrMalformedLedger, i)
		}
	}
	return nil
}

// Summarize counts items per status
func Summarize(items []Item) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case StatusMatched:
			s.Matched++
		case StatusAmountMismatch:
			s.AmountMismatch++
		case StatusMissingInBank:
			s.MissingInBank++
		case StatusMissingInERP:
			s.MissingInERP++
		case StatusDuplicate:
			s.Duplicate++
		}
	}
	return s
}
