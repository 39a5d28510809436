package handler

import (
	"net/http"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/apierror"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CatalogHandler struct{ svc service.CatalogService }

func NewCatalogHandler(svc service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// CreateProduct godoc
// @Summary      Register a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateProductRequest true "Product"
// @Success      201  {object} dto.ProductResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req dto.CreateProductRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !sameBusiness(c, req.BusinessID) {
		return
	}
	resp, err := h.svc.CreateProduct(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListProducts godoc
// @Summary      List products, optionally for one business
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        business_id query string false "Business"
// @Success      200  {array} dto.ProductResponse
// @Router       /v1/products [get]
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	businessID := uuid.Nil
	if raw := c.Query("business_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeInvalidRequest, "invalid business_id"))
			return
		}
		businessID = id
	}
	resp, err := h.svc.ListProducts(c.Request.Context(), businessID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetProduct godoc
// @Summary      Get a product
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Product id"
// @Success      200  {object} dto.ProductResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/products/{id} [get]
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateWarehouse godoc
// @Summary      Register a warehouse
// @Tags         warehouses
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateWarehouseRequest true "Warehouse"
// @Success      201  {object} dto.WarehouseResponse
// @Router       /v1/warehouses [post]
func (h *CatalogHandler) CreateWarehouse(c *gin.Context) {
	var req dto.CreateWarehouseRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateWarehouse(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *CatalogHandler) ListWarehouses(c *gin.Context) {
	resp, err := h.svc.ListWarehouses(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CatalogHandler) GetWarehouse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetWarehouse(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
