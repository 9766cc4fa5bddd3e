package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/logger"
	"hrms/internal/model"
	"hrms/internal/reconciliation"
	"hrms/internal/repository"
	"hrms/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Events pushed to connected clients of the owning company
const (
	EventReconciliationCompleted = "reconciliation.completed"
	EventReconciliationFailed    = "reconciliation.failed"
	EventItemResolved            = "reconciliation.item_resolved"
)

// EventPublisher fans an event out to one company's subscribers
type EventPublisher interface {
	Publish(companyID uuid.UUID, eventType string, payload any)
}

// --- DTOs ---

type BankLineInput struct {
	Reference string          `json:"reference" binding:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
	ValueDate time.Time       `json:"valueDate" binding:"required"`
	Payee     string          `json:"payee" binding:"max=255"`
}

type ExpectedPaymentInput struct {
	PayslipID    string          `json:"payslipId" binding:"max=64"`
	EmployeeID   string          `json:"employeeId" binding:"max=64"`
	EmployeeName string          `json:"employeeName" binding:"max=255"`
	Amount       decimal.Decimal `json:"amount"`
	UTR          string          `json:"utr" binding:"max=64"`
	PaymentDate  *time.Time      `json:"paymentDate"`
}

type CreateReconciliationRequest struct {
	PayrollCycleID uuid.UUID              `json:"payrollCycleId" binding:"required"`
	BankData       []BankLineInput        `json:"bankData" binding:"required,min=1,dive"`
	ERPData        []ExpectedPaymentInput `json:"erpData" binding:"dive"` // empty falls back to the cycle's stored payments
}

type AutoMatchRequest struct {
	PayrollCycleID uuid.UUID       `json:"payrollCycleId" binding:"required"`
	BankData       []BankLineInput `json:"bankData" binding:"required,min=1,dive"`
}

type ResolveItemRequest struct {
	Resolution string `json:"resolution" binding:"required,oneof=accept_bank_amount accept_erp_amount manual_adjustment_required ignore_duplicate"`
	Remarks    string `json:"remarks" binding:"max=2000"`
}

type ReconciliationQuery struct {
	CompanyID      *uuid.UUID
	PayrollCycleID *uuid.UUID
	Status         string
	From           *time.Time
	To             *time.Time
}

type StatsQuery struct {
	CompanyID *uuid.UUID
	From      *time.Time
	To        *time.Time
	// GroupBy adds a per-period trend: day, week or month
	GroupBy string
}

// --- Interface ---

type ReconciliationService interface {
	Create(ctx context.Context, claims *auth.Claims, req CreateReconciliationRequest) (*model.Reconciliation, error)
	AutoMatch(ctx context.Context, claims *auth.Claims, req AutoMatchRequest) (*model.Reconciliation, error)
	List(ctx context.Context, claims *auth.Claims, query ReconciliationQuery, params pagination.Params) ([]model.Reconciliation, int64, error)
	Get(ctx context.Context, claims *auth.Claims, id uuid.UUID) (*model.Reconciliation, error)
	ResolveItem(ctx context.Context, claims *auth.Claims, itemID uuid.UUID, req ResolveItemRequest) (*model.ReconciliationItem, error)
	Stats(ctx context.Context, claims *auth.Claims, query StatsQuery) (*model.ReconciliationStats, error)
	Export(ctx context.Context, claims *auth.Claims, id uuid.UUID) (filename string, content []byte, err error)
}

type reconciliationService struct {
	repo      repository.ReconciliationRepository
	stats     repository.StatisticsRepository
	payroll   repository.PayrollRepository
	txManager repository.TransactionManager
	audit     AuditService
	engine    *authz.Engine
	matcher   *reconciliation.Matcher
	locker    RunLocker
	events    EventPublisher
	tracer    trace.Tracer
	now       func() time.Time
}

type ReconciliationDeps struct {
	Repo      repository.ReconciliationRepository
	Stats     repository.StatisticsRepository
	Payroll   repository.PayrollRepository
	TxManager repository.TransactionManager
	Audit     AuditService
	Engine    *authz.Engine
	Matcher   *reconciliation.Matcher
	Locker    RunLocker      // optional, defaults to a no-op locker
	Events    EventPublisher // optional
}

func NewReconciliationService(deps ReconciliationDeps) ReconciliationService {
	locker := deps.Locker
	if locker == nil {
		locker = NewNoopRunLocker()
	}
	return &reconciliationService{
		repo:      deps.Repo,
		stats:     deps.Stats,
		payroll:   deps.Payroll,
		txManager: deps.TxManager,
		audit:     deps.Audit,
		engine:    deps.Engine,
		matcher:   deps.Matcher,
		locker:    locker,
		events:    deps.Events,
		tracer:    otel.Tracer("hrms/reconciliation"),
		now:       time.Now,
	}
}

// --- Implementation ---

func (s *reconciliationService) Create(ctx context.Context, claims *auth.Claims, req CreateReconciliationRequest) (*model.Reconciliation, error) {
	cycle, err := s.cycleFor(ctx, claims, req.PayrollCycleID)
	if err != nil {
		return nil, err
	}

	var expected []reconciliation.ExpectedPayment
	if len(req.ERPData) > 0 {
		expected = make([]reconciliation.ExpectedPayment, 0, len(req.ERPData))
		for _, e := range req.ERPData {
			expected = append(expected, reconciliation.ExpectedPayment{
				PayslipID:    e.PayslipID,
				EmployeeID:   e.EmployeeID,
				EmployeeName: e.EmployeeName,
				Amount:       e.Amount,
				UTR:          e.UTR,
				PaymentDate:  e.PaymentDate,
			})
		}
	} else if expected, err = s.storedPayments(ctx, cycle.ID); err != nil {
		return nil, err
	}

	return s.run(ctx, claims, cycle, toBankLines(req.BankData), expected)
}

// AutoMatch re-runs the matching pass against the cycle's stored ERP payments
func (s *reconciliationService) AutoMatch(ctx context.Context, claims *auth.Claims, req AutoMatchRequest) (*model.Reconciliation, error) {
	cycle, err := s.cycleFor(ctx, claims, req.PayrollCycleID)
	if err != nil {
		return nil, err
	}
	expected, err := s.storedPayments(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, claims, cycle, toBankLines(req.BankData), expected)
}

func (s *reconciliationService) List(ctx context.Context, claims *auth.Claims, query ReconciliationQuery, params pagination.Params) ([]model.Reconciliation, int64, error) {
	companyID, err := s.scopeCompany(claims, query.CompanyID)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.ReconciliationFilter{
		CompanyID:      companyID,
		PayrollCycleID: query.PayrollCycleID,
		Status:         query.Status,
		From:           query.From,
		To:             query.To,
	}
	recs, total, err := s.repo.List(ctx, filter, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reconciliations: %w", err)
	}
	return recs, total, nil
}

func (s *reconciliationService) Get(ctx context.Context, claims *auth.Claims, id uuid.UUID) (*model.Reconciliation, error) {
	rec, err := s.repo.FindByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("reconciliation not found")
		}
		return nil, fmt.Errorf("failed to load reconciliation: %w", err)
	}
	if d := s.engine.CheckCompany(claims, &rec.CompanyID); !d.Allowed {
		return nil, d.Err
	}
	return rec, nil
}

// ResolveItem closes one discrepancy. Matched and already-resolved items are rejected;
// the record completes once its last open item is resolved.
func (s *reconciliationService) ResolveItem(ctx context.Context, claims *auth.Claims, itemID uuid.UUID, req ResolveItemRequest) (*model.ReconciliationItem, error) {
	if !validResolution(req.Resolution) {
		return nil, apperror.Validation("invalid resolution",
			apperror.FieldError{Field: "resolution", Message: "unknown resolution code"})
	}

	var item *model.ReconciliationItem
	var completed bool
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		item, err = s.repo.FindItemByID(txCtx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("reconciliation item not found")
			}
			return fmt.Errorf("failed to load reconciliation item: %w", err)
		}
		if d := s.engine.CheckCompany(claims, &item.CompanyID); !d.Allowed {
			return d.Err
		}

		switch item.Status {
		case model.ItemMatched:
			return apperror.InvalidState("matched items are already reconciled")
		case model.ItemResolved:
			return apperror.InvalidState("item is already resolved")
		}

		resolvedAt := s.now().UTC()
		item.Status = model.ItemResolved
		item.Resolution = req.Resolution
		item.Remarks = req.Remarks
		item.ResolvedBy = &claims.UserID
		item.ResolvedAt = &resolvedAt
		if err := s.repo.UpdateItem(txCtx, item); err != nil {
			return fmt.Errorf("failed to resolve item: %w", err)
		}

		if err := s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &item.CompanyID,
			UserID:     &claims.UserID,
			Action:     model.ActionReconciliationResolve,
			EntityType: "reconciliation_item",
			EntityID:   item.ID.String(),
			Details: map[string]any{
				"reconciliationId": item.ReconciliationID,
				"originalStatus":   item.OriginalStatus,
				"resolution":       req.Resolution,
				"remarks":          req.Remarks,
			},
		}); err != nil {
			return err
		}

		open, err := s.repo.CountOpenItems(txCtx, item.ReconciliationID)
		if err != nil {
			return fmt.Errorf("failed to count open items: %w", err)
		}
		if open > 0 {
			return nil
		}
		rec, err := s.repo.FindByID(txCtx, item.ReconciliationID, false)
		if err != nil {
			return fmt.Errorf("failed to load reconciliation: %w", err)
		}
		if rec.Status != model.ReconciliationInProgress {
			return nil
		}
		rec.Status = model.ReconciliationCompleted
		if err := s.repo.UpdateSummary(txCtx, rec); err != nil {
			return fmt.Errorf("failed to complete reconciliation: %w", err)
		}
		completed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(item.CompanyID, EventItemResolved, map[string]any{
		"reconciliationId": item.ReconciliationID,
		"itemId":           item.ID,
		"resolution":       item.Resolution,
		"completed":        completed,
	})
	return item, nil
}

func (s *reconciliationService) Stats(ctx context.Context, claims *auth.Claims, query StatsQuery) (*model.ReconciliationStats, error) {
	companyID, err := s.scopeCompany(claims, query.CompanyID)
	if err != nil {
		return nil, err
	}
	filter := repository.ReconciliationFilter{CompanyID: companyID, From: query.From, To: query.To}

	records, err := s.stats.CountRecordsByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}
	items, err := s.stats.CountItemsByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}
	lowConfidence, err := s.stats.CountLowConfidenceMatches(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &model.ReconciliationStats{
		RecordStatuses: make(map[string]int64, len(records)),
		LowConfidence:  lowConfidence,
		From:           query.From,
		To:             query.To,
	}
	for _, r := range records {
		stats.Records += r.Count
		stats.RecordStatuses[r.Status] = r.Count
	}
	for _, row := range items {
		stats.Items += row.Count
		switch reconciliation.ItemStatus(row.Status) {
		case reconciliation.StatusMatched:
			stats.Matched = row.Count
		case reconciliation.StatusAmountMismatch:
			stats.AmountMismatch = row.Count
		case reconciliation.StatusMissingInBank:
			stats.MissingInBank = row.Count
		case reconciliation.StatusMissingInERP:
			stats.MissingInERP = row.Count
		case reconciliation.StatusDuplicate:
			stats.Duplicate = row.Count
		case reconciliation.StatusResolved:
			stats.Resolved = row.Count
		}
	}

	if query.GroupBy != "" {
		if !trendBuckets[query.GroupBy] {
			return nil, apperror.Validation("invalid groupBy",
				apperror.FieldError{Field: "groupBy", Message: "must be one of day, week, month"})
		}
		rows, err := s.stats.CountItemsByPeriod(ctx, filter, query.GroupBy)
		if err != nil {
			return nil, err
		}
		stats.Trend = bucketTrend(rows)
	}
	return stats, nil
}

// --- Helpers ---

var trendBuckets = map[string]bool{"day": true, "week": true, "month": true}

// bucketTrend folds period/status rows, already ordered by period, into one entry per period
func bucketTrend(rows []model.PeriodStatusCount) []model.PeriodStats {
	trend := make([]model.PeriodStats, 0)
	for _, row := range rows {
		if n := len(trend); n == 0 || trend[n-1].Period != row.Period {
			trend = append(trend, model.PeriodStats{Period: row.Period, Counts: map[string]int64{}})
		}
		last := &trend[len(trend)-1]
		last.Items += row.Count
		last.Counts[row.Status] += row.Count
	}
	return trend
}

// run executes one matching pass; the record and all of its items are written in a single transaction
func (s *reconciliationService) run(ctx context.Context, claims *auth.Claims, cycle *model.PayrollCycle, bank []reconciliation.BankLine, expected []reconciliation.ExpectedPayment) (*model.Reconciliation, error) {
	release, err := s.locker.Acquire(ctx, cycle.CompanyID.String()+":"+cycle.ID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := s.tracer.Start(ctx, "reconciliation.run", trace.WithAttributes(
		attribute.String("company.id", cycle.CompanyID.String()),
		attribute.String("payroll_cycle.id", cycle.ID.String()),
		attribute.Int("bank.lines", len(bank)),
		attribute.Int("erp.payments", len(expected)),
	))
	defer span.End()

	rec := &model.Reconciliation{
		CompanyID:      cycle.CompanyID,
		PayrollCycleID: cycle.ID,
		Status:         model.ReconciliationPending,
		PerformedBy:    claims.UserID,
		PerformedAt:    s.now().UTC(),
	}

	var matchErr error
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, rec); err != nil {
			return fmt.Errorf("failed to create reconciliation: %w", err)
		}

		result, err := s.matcher.Match(bank, expected)
		if err != nil {
			matchErr = err
			rec.Status = model.ReconciliationFailed
			rec.FailureReason = err.Error()
			if err := s.repo.UpdateSummary(txCtx, rec); err != nil {
				return fmt.Errorf("failed to mark reconciliation failed: %w", err)
			}
			return s.audit.Record(txCtx, AuditEntry{
				CompanyID:  &rec.CompanyID,
				UserID:     &claims.UserID,
				Action:     model.ActionReconciliationFailed,
				EntityType: "reconciliation",
				EntityID:   rec.ID.String(),
				Details:    map[string]any{"payrollCycleId": rec.PayrollCycleID, "reason": rec.FailureReason},
			})
		}

		if err := s.repo.AddItems(txCtx, rec, toItemModels(result.Items)); err != nil {
			return fmt.Errorf("failed to save reconciliation items: %w", err)
		}

		applySummary(rec, result.Summary)
		rec.Status = model.ReconciliationCompleted
		if result.NeedsFollowUp() {
			rec.Status = model.ReconciliationInProgress
		}
		if err := s.repo.UpdateSummary(txCtx, rec); err != nil {
			return fmt.Errorf("failed to update reconciliation summary: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &rec.CompanyID,
			UserID:     &claims.UserID,
			Action:     model.ActionReconciliationRun,
			EntityType: "reconciliation",
			EntityID:   rec.ID.String(),
			Details:    map[string]any{"payrollCycleId": rec.PayrollCycleID, "summary": result.Summary},
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation run aborted")
		return nil, err
	}

	if matchErr != nil {
		span.RecordError(matchErr)
		span.SetStatus(codes.Error, "matching pass failed")
		logger.Get().WithFields(logrus.Fields{
			"reconciliationId": rec.ID,
			"payrollCycleId":   rec.PayrollCycleID,
		}).Warn("reconciliation failed: " + matchErr.Error())
		s.publish(rec.CompanyID, EventReconciliationFailed, map[string]any{
			"reconciliationId": rec.ID,
			"reason":           rec.FailureReason,
		})

		failed := apperror.ReconciliationFailed(matchErr)
		failed.Details = map[string]any{"reconciliationId": rec.ID, "reason": rec.FailureReason}
		return nil, failed
	}

	span.SetAttributes(attribute.String("reconciliation.status", rec.Status))
	s.publish(rec.CompanyID, EventReconciliationCompleted, map[string]any{
		"reconciliationId": rec.ID,
		"status":           rec.Status,
		"totalItems":       rec.TotalItems,
	})
	return rec, nil
}

func (s *reconciliationService) cycleFor(ctx context.Context, claims *auth.Claims, cycleID uuid.UUID) (*model.PayrollCycle, error) {
	cycle, err := s.payroll.FindCycleByID(ctx, cycleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("payroll cycle not found")
		}
		return nil, fmt.Errorf("failed to load payroll cycle: %w", err)
	}
	if d := s.engine.CheckCompany(claims, &cycle.CompanyID); !d.Allowed {
		return nil, d.Err
	}
	return cycle, nil
}

func (s *reconciliationService) storedPayments(ctx context.Context, cycleID uuid.UUID) ([]reconciliation.ExpectedPayment, error) {
	payments, err := s.payroll.AllPayments(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payroll payments: %w", err)
	}
	expected := make([]reconciliation.ExpectedPayment, 0, len(payments))
	for _, p := range payments {
		expected = append(expected, reconciliation.ExpectedPayment{
			PayslipID:    p.PayslipID,
			EmployeeID:   p.EmployeeID,
			EmployeeName: p.EmployeeName,
			Amount:       p.Amount,
			UTR:          p.UTR,
			PaymentDate:  p.PaymentDate,
		})
	}
	return expected, nil
}

// scopeCompany defaults a missing company filter to the caller's own company
func (s *reconciliationService) scopeCompany(claims *auth.Claims, requested *uuid.UUID) (*uuid.UUID, error) {
	if claims != nil && !claims.IsSuperAdmin && requested == nil {
		requested = claims.CompanyID
	}
	if d := s.engine.CheckCompany(claims, requested); !d.Allowed {
		return nil, d.Err
	}
	return requested, nil
}

func (s *reconciliationService) publish(companyID uuid.UUID, eventType string, payload any) {
	if s.events != nil {
		s.events.Publish(companyID, eventType, payload)
	}
}

func validResolution(code string) bool {
	switch code {
	case model.ResolutionAcceptBank, model.ResolutionAcceptERP,
		model.ResolutionManualAdjustment, model.ResolutionIgnoreDuplicate:
		return true
	}
	return false
}

func toBankLines(in []BankLineInput) []reconciliation.BankLine {
	lines := make([]reconciliation.BankLine, 0, len(in))
	for _, b := range in {
		lines = append(lines, reconciliation.BankLine{
			Reference: b.Reference,
			Amount:    b.Amount,
			ValueDate: b.ValueDate,
			Payee:     b.Payee,
		})
	}
	return lines
}

func toItemModels(items []reconciliation.Item) []model.ReconciliationItem {
	out := make([]model.ReconciliationItem, 0, len(items))
	for i, it := range items {
		m := model.ReconciliationItem{
			Position:       i,
			Status:         string(it.Status),
			OriginalStatus: string(it.Status),
			Difference:     it.Difference(),
			LowConfidence:  it.LowConfidence,
			Score:          it.Score,
			Note:           it.Note,
		}
		if it.Bank != nil {
			valueDate := it.Bank.ValueDate
			m.BankReference = it.Bank.Reference
			m.BankAmount = decimal.NewNullDecimal(it.Bank.Amount)
			m.BankValueDate = &valueDate
			m.Payee = it.Bank.Payee
		}
		if it.Expected != nil {
			m.PayslipID = it.Expected.PayslipID
			m.EmployeeID = it.Expected.EmployeeID
			m.EmployeeName = it.Expected.EmployeeName
			m.ERPAmount = decimal.NewNullDecimal(it.Expected.Amount)
			m.ERPUTR = it.Expected.UTR
		}
		out = append(out, m)
	}
	return out
}

func applySummary(rec *model.Reconciliation, sum reconciliation.Summary) {
	rec.TotalItems = sum.Total
	rec.MatchedCount = sum.Matched
	rec.MismatchCount = sum.AmountMismatch
	rec.MissingBank = sum.MissingInBank
	rec.MissingERP = sum.MissingInERP
	rec.DuplicateCount = sum.Duplicate
}
