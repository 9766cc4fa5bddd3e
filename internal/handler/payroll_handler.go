package handler

import (
	"net/http"

	"hrms/internal/middleware"
	"hrms/internal/model"
	"hrms/internal/service"
	"hrms/pkg/pagination"
	"hrms/pkg/response"

	"github.com/gin-gonic/gin"
)

type PayrollHandler struct {
	payrollService service.PayrollService
	authorizer     *middleware.Authorizer
}

func NewPayrollHandler(payrollService service.PayrollService, authorizer *middleware.Authorizer) *PayrollHandler {
	return &PayrollHandler{payrollService: payrollService, authorizer: authorizer}
}

func (h *PayrollHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/payroll-cycles")
	group.Use(h.authorizer.Authenticate(), h.authorizer.RequireRole(model.RoleAdmin, model.RoleFinance, model.RoleAccounts))
	{
		group.GET("/:id/payments", h.ListPayments)
	}
}

// ListPayments returns the expected payments of a payroll cycle
// @Summary      List expected payments
// @Tags         payroll
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      string  true   "Payroll cycle ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Items per page (default 50)"
// @Success      200    {object}  response.Response{data=[]model.PayrollPayment}
// @Failure      404    {object}  response.Response
// @Router       /payroll-cycles/{id}/payments [get]
func (h *PayrollHandler) ListPayments(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	params := pagination.ParseWithDefault(c, 50)
	payments, total, err := h.payrollService.ListPayments(c.Request.Context(), middleware.ClaimsFrom(c), id, params)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(payments, params.Meta(total)))
}
