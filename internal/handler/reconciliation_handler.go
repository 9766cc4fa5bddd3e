package handler

import (
	"net/http"

	"hrms/internal/apperror"
	"hrms/internal/middleware"
	"hrms/internal/model"
	"hrms/internal/service"
	"hrms/pkg/pagination"
	"hrms/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var reconciliationStatuses = map[string]bool{
	model.ReconciliationPending:    true,
	model.ReconciliationInProgress: true,
	model.ReconciliationCompleted:  true,
	model.ReconciliationFailed:     true,
}

type ReconciliationHandler struct {
	reconService service.ReconciliationService
	authorizer   *middleware.Authorizer
}

func NewReconciliationHandler(reconService service.ReconciliationService, authorizer *middleware.Authorizer) *ReconciliationHandler {
	return &ReconciliationHandler{reconService: reconService, authorizer: authorizer}
}

func (h *ReconciliationHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/reconciliation")
	group.Use(h.authorizer.Authenticate(), h.authorizer.RequireRole(model.RoleAdmin, model.RoleFinance, model.RoleAccounts))
	{
		group.POST("", h.Create)
		group.GET("", h.List)
		group.GET("/stats", h.Stats)
		group.POST("/auto-match", h.AutoMatch)
		group.POST("/items/:itemId/resolve", h.ResolveItem)
		group.GET("/:id", h.Get)
		group.GET("/:id/export", h.Export)
	}
}

// Create runs the matcher over the posted ledgers and stores the result
// @Summary      Create reconciliation
// @Description  Matches bank lines against expected payments (posted or stored for the cycle) and persists the record with its items
// @Tags         reconciliation
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateReconciliationRequest  true  "Ledgers"
// @Success      201      {object}  response.Response{data=model.Reconciliation}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /reconciliation [post]
func (h *ReconciliationHandler) Create(c *gin.Context) {
	var req service.CreateReconciliationRequest
	if !bindJSON(c, &req) {
		return
	}

	rec, err := h.reconService.Create(c.Request.Context(), middleware.ClaimsFrom(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, response.SuccessMessage("Reconciliation completed", rec))
}

// AutoMatch re-runs matching against the cycle's stored payments
// @Summary      Auto-match
// @Tags         reconciliation
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.AutoMatchRequest  true  "Bank ledger"
// @Success      200      {object}  response.Response{data=model.Reconciliation}
// @Router       /reconciliation/auto-match [post]
func (h *ReconciliationHandler) AutoMatch(c *gin.Context) {
	var req service.AutoMatchRequest
	if !bindJSON(c, &req) {
		return
	}

	rec, err := h.reconService.AutoMatch(c.Request.Context(), middleware.ClaimsFrom(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(rec))
}

// List returns reconciliation records without items
// @Summary      List reconciliations
// @Tags         reconciliation
// @Security     BearerAuth
// @Produce      json
// @Param        companyId       query     string  false  "Company (super-admin only)"
// @Param        payrollCycleId  query     string  false  "Payroll cycle"
// @Param        status          query     string  false  "pending, in_progress, completed or failed"
// @Param        from            query     string  false  "Performed at or after"
// @Param        to              query     string  false  "Performed at or before"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Items per page (default 20)"
// @Success      200             {object}  response.Response{data=[]model.Reconciliation}
// @Router       /reconciliation [get]
func (h *ReconciliationHandler) List(c *gin.Context) {
	var query service.ReconciliationQuery
	var ok bool
	if query.CompanyID, ok = queryUUID(c, "companyId"); !ok {
		return
	}
	if query.PayrollCycleID, ok = queryUUID(c, "payrollCycleId"); !ok {
		return
	}
	if query.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if query.To, ok = queryTime(c, "to"); !ok {
		return
	}
	query.Status = c.Query("status")
	if query.Status != "" && !reconciliationStatuses[query.Status] {
		_ = c.Error(apperror.Validation("invalid status",
			apperror.FieldError{Field: "status", Message: "must be one of pending, in_progress, completed, failed"}))
		return
	}

	params := pagination.Parse(c)
	records, total, err := h.reconService.List(c.Request.Context(), middleware.ClaimsFrom(c), query, params)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(records, params.Meta(total)))
}

// Get returns one reconciliation with its items
// @Summary      Get reconciliation
// @Tags         reconciliation
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Reconciliation ID"
// @Success      200  {object}  response.Response{data=model.Reconciliation}
// @Failure      404  {object}  response.Response
// @Router       /reconciliation/{id} [get]
func (h *ReconciliationHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	rec, err := h.reconService.Get(c.Request.Context(), middleware.ClaimsFrom(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(rec))
}

// ResolveItem records a decision on a discrepancy
// @Summary      Resolve item
// @Tags         reconciliation
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        itemId   path      string                      true  "Item ID"
// @Param        payload  body      service.ResolveItemRequest  true  "Resolution"
// @Success      200      {object}  response.Response{data=model.ReconciliationItem}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /reconciliation/items/{itemId}/resolve [post]
func (h *ReconciliationHandler) ResolveItem(c *gin.Context) {
	itemID, ok := paramUUID(c, "itemId")
	if !ok {
		return
	}
	var req service.ResolveItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.reconService.ResolveItem(c.Request.Context(), middleware.ClaimsFrom(c), itemID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessMessage("Item resolved", item))
}

// Stats aggregates item counts by status
// @Summary      Reconciliation statistics
// @Tags         reconciliation
// @Security     BearerAuth
// @Produce      json
// @Param        companyId  query     string  false  "Company (super-admin only)"
// @Param        from       query     string  false  "Performed at or after"
// @Param        to         query     string  false  "Performed at or before"
// @Param        groupBy    query     string  false  "Add a trend bucketed by day, week or month"
// @Success      200        {object}  response.Response{data=model.ReconciliationStats}
// @Router       /reconciliation/stats [get]
func (h *ReconciliationHandler) Stats(c *gin.Context) {
	var query service.StatsQuery
	var ok bool
	if query.CompanyID, ok = queryUUID(c, "companyId"); !ok {
		return
	}
	if query.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if query.To, ok = queryTime(c, "to"); !ok {
		return
	}
	query.GroupBy = c.Query("groupBy")

	stats, err := h.reconService.Stats(c.Request.Context(), middleware.ClaimsFrom(c), query)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(stats))
}

// Export streams the reconciliation as an xlsx workbook
// @Summary      Export reconciliation
// @Tags         reconciliation
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        id   path  string  true  "Reconciliation ID"
// @Success      200  {file}  file
// @Failure      404  {object}  response.Response
// @Router       /reconciliation/{id}/export [get]
func (h *ReconciliationHandler) Export(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	filename, content, err := h.reconService.Export(c.Request.Context(), middleware.ClaimsFrom(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, content)
}
