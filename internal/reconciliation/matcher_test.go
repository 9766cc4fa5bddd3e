package reconciliation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func bankLine(ref string, amount int64, offsetDays int) BankLine {
	return BankLine{Reference: ref, Amount: amt(amount), ValueDate: day.AddDate(0, 0, offsetDays)}
}

func payment(payslip, utr string, amount int64) ExpectedPayment {
	return ExpectedPayment{PayslipID: payslip, EmployeeID: "emp-" + payslip, UTR: utr, Amount: amt(amount)}
}

// stubScorer returns fixed scores per (bank reference, payslip) pair
type stubScorer map[[2]string]float64

func (s stubScorer) Score(line BankLine, expected ExpectedPayment) float64 {
	return s[[2]string{line.Reference, expected.PayslipID}]
}

func statuses(r *Result) []ItemStatus {
	out := make([]ItemStatus, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Status
	}
	return out
}

func TestExactMatch(t *testing.T) {
	res, err := NewMatcher(nil).Match(
		[]BankLine{bankLine("UTR1", 1000, 0)},
		[]ExpectedPayment{payment("PS1", "UTR1", 1000)},
	)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, StatusMatched, res.Items[0].Status)
	assert.False(t, res.Items[0].LowConfidence)
	assert.False(t, res.NeedsFollowUp())
}

func TestAmountMismatchKeepsBothAmounts(t *testing.T) {
	res, err := NewMatcher(nil).Match(
		[]BankLine{bankLine("UTR1", 900, 0)},
		[]ExpectedPayment{payment("PS1", "UTR1", 1000)},
	)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	item := res.Items[0]
	assert.Equal(t, StatusAmountMismatch, item.Status)
	assert.True(t, item.Bank.Amount.Equal(amt(900)))
	assert.True(t, item.Expected.Amount.Equal(amt(1000)))
	assert.True(t, item.Difference().Equal(amt(-100)))
	assert.True(t, res.NeedsFollowUp())
}

func TestDecimalComparisonIsExact(t *testing.T) {
	res, err := NewMatcher(nil).Match(
		[]BankLine{{Reference: "UTR1", Amount: decimal.RequireFromString("1000.10"), ValueDate: day}},
		[]ExpectedPayment{{PayslipID: "PS1", UTR: "utr1", Amount: decimal.RequireFromString("1000.1")}},
	)
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{StatusMatched}, statuses(res))
}

func TestMissingOnEitherSide(t *testing.T) {
	res, err := NewMatcher(NewHeuristicScorer(0)).Match(
		[]BankLine{bankLine("UTR3", 500, 0)},
		[]ExpectedPayment{payment("PS2", "UTR2", 700)},
	)
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{StatusMissingInBank, StatusMissingInERP}, statuses(res))
	assert.Equal(t, "PS2", res.Items[0].Expected.PayslipID)
	assert.Equal(t, "UTR3", res.Items[1].Bank.Reference)
	assert.Equal(t, Summary{Total: 2, MissingInBank: 1, MissingInERP: 1}, res.Summary)
}

func TestDuplicateBankPostingsKeepEarliest(t *testing.T) {
	bank := []BankLine{
		bankLine("UTR1", 1000, 2), // later posting listed first
		bankLine("UTR1", 1000, 0),
	}
	res, err := NewMatcher(nil).Match(bank, []ExpectedPayment{payment("PS1", "UTR1", 1000)})
	require.NoError(t, err)

	require.Equal(t, []ItemStatus{StatusMatched, StatusDuplicate}, statuses(res))
	assert.Equal(t, day, res.Items[0].Bank.ValueDate)
	assert.Equal(t, day.AddDate(0, 0, 2), res.Items[1].Bank.ValueDate)
	assert.Nil(t, res.Items[1].Expected)
}

func TestDuplicateERPReference(t *testing.T) {
	res, err := NewMatcher(nil).Match(
		[]BankLine{bankLine("UTR1", 1000, 0)},
		[]ExpectedPayment{payment("PS1", "UTR1", 1000), payment("PS2", "UTR1", 1000)},
	)
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{StatusMatched, StatusDuplicate}, statuses(res))
	assert.Equal(t, "PS2", res.Items[1].Expected.PayslipID)
}

func TestSecondaryMatchUniqueCandidate(t *testing.T) {
	scorer := stubScorer{
		{"NEFT-77", "PS2"}: 0.9,
		{"NEFT-77", "PS3"}: 0.4,
	}
	res, err := NewMatcher(scorer).Match(
		[]BankLine{bankLine("NEFT-77", 800, 0)},
		[]ExpectedPayment{payment("PS2", "", 800), payment("PS3", "", 800)},
	)
	require.NoError(t, err)
	require.Equal(t, []ItemStatus{StatusMatched, StatusMissingInBank}, statuses(res))
	assert.True(t, res.Items[0].LowConfidence)
	assert.Equal(t, 0.9, res.Items[0].Score)
	assert.Equal(t, "PS2", res.Items[0].Expected.PayslipID)
	assert.Equal(t, "PS3", res.Items[1].Expected.PayslipID)
}

func TestSecondaryMatchTieStaysUnmatched(t *testing.T) {
	scorer := stubScorer{
		{"NEFT-77", "PS2"}: 0.5,
		{"NEFT-77", "PS3"}: 0.5,
	}
	res, err := NewMatcher(scorer).Match(
		[]BankLine{bankLine("NEFT-77", 800, 0)},
		[]ExpectedPayment{payment("PS2", "", 800), payment("PS3", "", 800)},
	)
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{StatusMissingInERP, StatusMissingInBank, StatusMissingInBank}, statuses(res))
}

func TestExactReferenceBeatsFuzzy(t *testing.T) {
	scorer := stubScorer{{"UTR1", "PS9"}: 1}
	res, err := NewMatcher(scorer).Match(
		[]BankLine{bankLine("UTR1", 1000, 0)},
		[]ExpectedPayment{payment("PS9", "", 1000), payment("PS1", "UTR1", 1000)},
	)
	require.NoError(t, err)
	require.Equal(t, []ItemStatus{StatusMatched, StatusMissingInBank}, statuses(res))
	assert.Equal(t, "PS1", res.Items[0].Expected.PayslipID)
	assert.False(t, res.Items[0].LowConfidence)
}

func TestReferencedPaymentsNeverFuzzyMatch(t *testing.T) {
	scorer := stubScorer{{"NEFT-1", "PS1"}: 1}
	res, err := NewMatcher(scorer).Match(
		[]BankLine{bankLine("NEFT-1", 1000, 0)},
		[]ExpectedPayment{payment("PS1", "UTR-404", 1000)},
	)
	require.NoError(t, err)
	require.Equal(t, []ItemStatus{StatusMissingInBank, StatusMissingInERP}, statuses(res))
	assert.Equal(t, "PS1", res.Items[0].Expected.PayslipID)
	assert.Equal(t, "NEFT-1", res.Items[1].Bank.Reference)
}

func TestDuplicatesNeverFuzzyMatch(t *testing.T) {
	scorer := stubScorer{{"UTR1", "PS9"}: 1}
	res, err := NewMatcher(scorer).Match(
		[]BankLine{bankLine("UTR1", 1000, 0), bankLine("UTR1", 1000, 1)},
		[]ExpectedPayment{payment("PS1", "UTR1", 1000), payment("PS9", "", 1000)},
	)
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{StatusMatched, StatusDuplicate, StatusMissingInBank}, statuses(res))
}

func TestMatchIsIdempotent(t *testing.T) {
	bank := []BankLine{
		bankLine("UTR1", 1000, 0),
		bankLine("UTR4", 300, 1),
		bankLine("UTR1", 1000, 1),
		bankLine("NEFT-1", 450, 0),
	}
	expected := []ExpectedPayment{
		payment("PS1", "UTR1", 1000),
		payment("PS2", "UTR2", 200),
		payment("PS3", "", 450),
	}
	m := NewMatcher(NewHeuristicScorer(DefaultDateWindow))

	first, err := m.Match(bank, expected)
	require.NoError(t, err)
	second, err := m.Match(bank, expected)
	require.NoError(t, err)

	assert.Equal(t, statuses(first), statuses(second))
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, Summary{Total: 5, Matched: 2, MissingInBank: 1, MissingInERP: 1, Duplicate: 1}, first.Summary)
}

func TestMalformedLedger(t *testing.T) {
	m := NewMatcher(nil)

	_, err := m.Match([]BankLine{bankLine("UTR1", 0, 0)}, nil)
	assert.True(t, errors.Is(err, ErrMalformedLedger))

	_, err = m.Match([]BankLine{{Reference: "UTR1", Amount: amt(10)}}, nil)
	assert.True(t, errors.Is(err, ErrMalformedLedger))

	_, err = m.Match(nil, []ExpectedPayment{{PayslipID: "PS1", Amount: amt(-5)}})
	assert.True(t, errors.Is(err, ErrMalformedLedger))

	_, err = m.Match(nil, []ExpectedPayment{{Amount: amt(5)}})
	assert.True(t, errors.Is(err, ErrMalformedLedger))
}

func TestAmountsMustFitStoredPrecision(t *testing.T) {
	m := NewMatcher(nil)
	expected := []ExpectedPayment{payment("PS1", "UTR1", 1000)}

	subCent := bankLine("UTR1", 0, 0)
	subCent.Amount = decimal.RequireFromString("1000.004")
	_, err := m.Match([]BankLine{subCent}, expected)
	assert.True(t, errors.Is(err, ErrMalformedLedger))

	huge := bankLine("UTR1", 0, 0)
	huge.Amount = decimal.New(1, 13)
	_, err = m.Match([]BankLine{huge}, expected)
	assert.True(t, errors.Is(err, ErrMalformedLedger))

	_, err = m.Match(nil, []ExpectedPayment{{PayslipID: "PS1", Amount: decimal.RequireFromString("0.001")}})
	assert.True(t, errors.Is(err, ErrMalformedLedger))

	// trailing zeros are still two-decimal amounts
	padded := bankLine("UTR1", 0, 0)
	padded.Amount = decimal.RequireFromString("1000.000")
	res, err := m.Match([]BankLine{padded}, expected)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, StatusMatched, res.Items[0].Status)
}

func TestEmptyLedgers(t *testing.T) {
	res, err := NewMatcher(nil).Match(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.False(t, res.NeedsFollowUp())
}
