package handler

import (
	"net/http"
	"strconv"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/apierror"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/middleware"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	"github.com/gin-gonic/gin"
)

type AllocationsHandler struct{ svc service.LedgerService }

func NewAllocationsHandler(svc service.LedgerService) *AllocationsHandler {
	return &AllocationsHandler{svc: svc}
}

// Get godoc
// @Summary      Read one ledger row
// @Tags         allocations
// @Produce      json
// @Security     BearerAuth
// @Param        product_id   path string true "Product"
// @Param        warehouse_id path string true "Warehouse"
// @Success      200  {object} dto.AllocationResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/allocations/{product_id}/{warehouse_id} [get]
func (h *AllocationsHandler) Get(c *gin.Context) {
	productID, ok := uuidParam(c, "product_id")
	if !ok {
		return
	}
	warehouseID, ok := uuidParam(c, "warehouse_id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), productID, warehouseID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Receive godoc
// @Summary      Receive stock into a warehouse
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.ReceiveStockRequest true "Receipt"
// @Success      200  {object} dto.AllocationResponse
// @Router       /v1/allocations/receive [post]
func (h *AllocationsHandler) Receive(c *gin.Context) {
	var req dto.ReceiveStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Receive(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Adjust godoc
// @Summary      Correct an allocation by a signed delta
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.AdjustStockRequest true "Adjustment"
// @Success      200  {object} dto.AllocationResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/allocations/adjust [post]
func (h *AllocationsHandler) Adjust(c *gin.Context) {
	var req dto.AdjustStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Adjust(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SetSafetyStock godoc
// @Summary      Set the safety stock of a ledger row
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.SafetyStockRequest true "Safety stock"
// @Success      200  {object} dto.AllocationResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/allocations/safety-stock [put]
func (h *AllocationsHandler) SetSafetyStock(c *gin.Context) {
	var req dto.SafetyStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.SetSafetyStock(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Alerts godoc
// @Summary      Rows at or below a stock threshold
// @Tags         allocations
// @Produce      json
// @Security     BearerAuth
// @Param        threshold query int false "Defaults to LOW_STOCK_THRESHOLD"
// @Success      200  {array} dto.StockAlertResponse
// @Router       /v1/allocations/alerts [get]
func (h *AllocationsHandler) Alerts(c *gin.Context) {
	threshold := -1
	if raw := c.Query("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeInvalidRequest, "threshold must be a non-negative integer"))
			return
		}
		threshold = n
	}
	resp, err := h.svc.LowStockAlerts(c.Request.Context(), threshold)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StockReport godoc
// @Summary      Per-warehouse stock for a product
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Product id"
// @Success      200  {object} dto.StockReportResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/products/{id}/stock [get]
func (h *AllocationsHandler) StockReport(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.StockReport(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// WarehouseStock godoc
// @Summary      Per-product stock held at a warehouse
// @Tags         warehouses
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Warehouse id"
// @Success      200  {object} dto.WarehouseInventoryResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/warehouses/{id}/stock [get]
func (h *AllocationsHandler) WarehouseStock(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.WarehouseStock(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary      Audit facts recorded for one ledger row
// @Tags         allocations
// @Produce      json
// @Security     BearerAuth
// @Param        product_id   path string true "Product"
// @Param        warehouse_id path string true "Warehouse"
// @Success      200  {array}  dto.AuditEventResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/allocations/{product_id}/{warehouse_id}/history [get]
func (h *AllocationsHandler) History(c *gin.Context) {
	productID, ok := uuidParam(c, "product_id")
	if !ok {
		return
	}
	warehouseID, ok := uuidParam(c, "warehouse_id")
	if !ok {
		return
	}
	resp, err := h.svc.History(c.Request.Context(), productID, warehouseID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
