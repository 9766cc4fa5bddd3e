package service

import (
	"context"
	"fmt"

	"hrms/internal/auth"
	"hrms/internal/logger"
	"hrms/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	itemsSheet   = "Items"
)

var itemHeadings = []string{
	"#", "Status", "Original Status", "Bank Reference", "Bank Amount", "Value Date", "Payee",
	"Payslip", "Employee ID", "Employee", "ERP Amount", "ERP UTR", "Difference",
	"Low Confidence", "Score", "Note", "Resolution", "Remarks", "Resolved At",
}

// Export renders the reconciliation as an xlsx workbook with a summary and an items sheet
func (s *reconciliationService) Export(ctx context.Context, claims *auth.Claims, id uuid.UUID) (string, []byte, error) {
	rec, err := s.Get(ctx, claims, id)
	if err != nil {
		return "", nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.LogError("service", "reconciliationService.Export", "Error closing workbook", id, err)
		}
	}()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return "", nil, fmt.Errorf("failed to prepare workbook: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return "", nil, fmt.Errorf("failed to prepare workbook: %w", err)
	}

	if err := writeSummary(f, rec); err != nil {
		return "", nil, err
	}
	if err := writeItems(f, rec.Items); err != nil {
		return "", nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return fmt.Sprintf("reconciliation-%s.xlsx", rec.ID), buf.Bytes(), nil
}

func writeSummary(f *excelize.File, rec *model.Reconciliation) error {
	rows := [][]any{
		{"Reconciliation", rec.ID.String()},
		{"Payroll Cycle", rec.PayrollCycleID.String()},
		{"Status", rec.Status},
		{"Performed At", rec.PerformedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Total Items", rec.TotalItems},
		{"Matched", rec.MatchedCount},
		{"Amount Mismatch", rec.MismatchCount},
		{"Missing In Bank", rec.MissingBank},
		{"Missing In ERP", rec.MissingERP},
		{"Duplicate", rec.DuplicateCount},
	}
	if rec.FailureReason != "" {
		rows = append(rows, []any{"Failure Reason", rec.FailureReason})
	}
	return writeRows(f, summarySheet, 1, rows)
}

func writeItems(f *excelize.File, items []model.ReconciliationItem) error {
	headings := make([]any, len(itemHeadings))
	for i, h := range itemHeadings {
		headings[i] = h
	}
	rows := [][]any{headings}

	for _, it := range items {
		valueDate, resolvedAt := "", ""
		if it.BankValueDate != nil {
			valueDate = it.BankValueDate.Format("2006-01-02")
		}
		if it.ResolvedAt != nil {
			resolvedAt = it.ResolvedAt.UTC().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []any{
			it.Position + 1, it.Status, it.OriginalStatus, it.BankReference, nullAmount(it.BankAmount),
			valueDate, it.Payee, it.PayslipID, it.EmployeeID, it.EmployeeName, nullAmount(it.ERPAmount),
			it.ERPUTR, it.Difference.StringFixed(2), it.LowConfidence, it.Score, it.Note,
			it.Resolution, it.Remarks, resolvedAt,
		})
	}
	return writeRows(f, itemsSheet, 1, rows)
}

func writeRows(f *excelize.File, sheet string, firstRow int, rows [][]any) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, firstRow+r)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", firstRow+r, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, firstRow+r, err)
		}
	}
	return nil
}

func nullAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
