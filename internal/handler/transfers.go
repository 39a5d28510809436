package handler

import (
	"net/http"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/middleware"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	"github.com/gin-gonic/gin"
)

type TransfersHandler struct{ svc service.TransferService }

func NewTransfersHandler(svc service.TransferService) *TransfersHandler {
	return &TransfersHandler{svc: svc}
}

// Create godoc
// @Summary      Transfer stock between warehouses
// @Description  Moves available stock atomically. Rejected transfers are still recorded as FAILED.
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.TransferRequest true "Transfer"
// @Success      201  {object} dto.TransferResponse
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/transfers [post]
func (h *TransfersHandler) Create(c *gin.Context) {
	var req dto.TransferRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Transfer(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List transfers
// @Tags         transfers
// @Produce      json
// @Security     BearerAuth
// @Param        product_id   query string false "Product"
// @Param        warehouse_id query string false "Source or destination warehouse"
// @Param        status       query string false "PENDING | COMPLETED | FAILED"
// @Param        page         query int    false "Page"
// @Param        limit        query int    false "Page size"
// @Success      200  {object} dto.TransferListResponse
// @Router       /v1/transfers [get]
func (h *TransfersHandler) List(c *gin.Context) {
	var filter dto.TransferFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListTransfers(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Get a transfer
// @Tags         transfers
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Transfer id"
// @Success      200  {object} dto.TransferResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/transfers/{id} [get]
func (h *TransfersHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetTransfer(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
