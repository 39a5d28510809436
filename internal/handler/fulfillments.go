package handler

import (
	"net/http"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/apierror"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/middleware"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	"github.com/gin-gonic/gin"
)

type FulfillmentsHandler struct{ svc service.FulfillmentService }

func NewFulfillmentsHandler(svc service.FulfillmentService) *FulfillmentsHandler {
	return &FulfillmentsHandler{svc: svc}
}

// Fulfill godoc
// @Summary      Place an order against the ledger
// @Description  Chooses one warehouse per line and consumes the stock for every line, or for none.
// @Tags         fulfillments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.FulfillRequest true "Order lines"
// @Success      201  {object} dto.FulfillmentResponse
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/fulfillments [post]
func (h *FulfillmentsHandler) Fulfill(c *gin.Context) {
	var req dto.FulfillRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !sameBusiness(c, req.BusinessID) {
		return
	}
	resp, err := h.svc.Fulfill(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Validate godoc
// @Summary      Dry-run a batch of orders
// @Description  Reports per-line availability for every order without touching the ledger.
// @Tags         fulfillments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.ValidateBatchRequest true "Orders"
// @Success      200  {object} dto.ValidateBatchResponse
// @Router       /v1/fulfillments/validate [post]
func (h *FulfillmentsHandler) Validate(c *gin.Context) {
	var req dto.ValidateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeInvalidRequest, "invalid JSON: "+err.Error()))
		return
	}
	// Malformed orders are reported per line instead of failing the batch.
	if len(req.Orders) == 0 || len(req.Orders) > 500 {
		c.JSON(http.StatusUnprocessableEntity, apierror.WithCode(apierror.CodeInvalidRequest, "orders must hold 1 to 500 entries"))
		return
	}
	for _, o := range req.Orders {
		if !sameBusiness(c, o.BusinessID) {
			return
		}
	}
	resp, err := h.svc.ValidateBatch(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// sameBusiness rejects tokens bound to one business acting on another.
func sameBusiness(c *gin.Context, businessID string) bool {
	claims := middleware.GetClaims(c)
	if claims == nil || claims.BusinessID == "" || claims.BusinessID == businessID {
		return true
	}
	c.JSON(http.StatusForbidden, apierror.WithCode(apierror.CodeForbidden, "token is not valid for this business"))
	return false
}
