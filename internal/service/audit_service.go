package service

import (
	"context"
	"encoding/json"
	"fmt"

	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/model"
	"hrms/internal/repository"
	"hrms/pkg/pagination"

	"github.com/google/uuid"
)

type AuditEntry struct {
	CompanyID  *uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Details    any
}

type AuditLogResponse struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId,omitempty"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Details    string `json:"details"`
	CreatedAt  string `json:"createdAt"`
}

type AuditService interface {
	// Record writes inside the transaction carried by ctx, if any
	Record(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, claims *auth.Claims, params pagination.Params) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo   repository.AuditRepository
	engine *authz.Engine
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository, engine *authz.Engine) AuditService {
	return &auditService{repo: repo, engine: engine}
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) error {
	details := "{}"
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = string(raw)
	}

	log := &model.AuditLog{
		CompanyID:  entry.CompanyID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    details,
	}
	if err := s.repo.Log(ctx, log); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// List returns the caller's company audit trail; super-admins see every company
func (s *auditService) List(ctx context.Context, claims *auth.Claims, params pagination.Params) ([]AuditLogResponse, int64, error) {
	var companyID *uuid.UUID
	if !claims.IsSuperAdmin {
		if d := s.engine.CheckCompany(claims, claims.CompanyID); !d.Allowed {
			return nil, 0, d.Err
		}
		companyID = claims.CompanyID
	}

	logs, total, err := s.repo.List(ctx, companyID, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		name := "System"
		userID := ""
		company := ""
		if l.User != nil {
			name = l.User.Name
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}
		if l.CompanyID != nil {
			company = l.CompanyID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			CompanyID:  company,
			UserID:     userID,
			UserName:   name,
			Action:     l.Action,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	return res, total, nil
}
