package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/apierror"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// decimal.Decimal validates as a number so tags like min=0 work on it.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds the JSON body and runs the validator tags.
// Returns false after writing the error response; the caller must return.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeInvalidRequest, "invalid JSON: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

// bindQuery is bindAndValidate for query-string filters.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeInvalidRequest, err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req interface{}) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeInvalidRequest, err.Error()))
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
	return false
}

// uuidParam parses a path parameter, writing a 400 when it is malformed.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeInvalidRequest, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain errors to status codes. Anything unrecognized
// is attached to the context for ErrorHandler to log and answered with a
// generic 500.
func writeServiceError(c *gin.Context, err error) {
	var (
		ise *service.InsufficientStockError
		pnf *service.ProductNotFoundError
	)
	switch {
	case errors.As(err, &ise):
		e := apierror.WithCode(apierror.CodeInsufficientStock, ise.Error()).
			With("product_id", ise.ProductID).
			With("requested", ise.Requested).
			With("available", ise.Available)
		if ise.SKU != "" {
			e.With("sku", ise.SKU)
		}
		if ise.WarehouseID != nil {
			e.With("warehouse_id", *ise.WarehouseID)
		}
		if len(ise.Breakdown) > 0 {
			e.With("breakdown", ise.Breakdown)
		}
		c.JSON(http.StatusConflict, e)
	case errors.As(err, &pnf):
		e := apierror.WithCode(apierror.CodeNotFound, pnf.Error())
		if pnf.SKU != "" {
			e.With("sku", pnf.SKU)
		}
		c.JSON(http.StatusNotFound, e)
	case errors.Is(err, service.ErrWarehouseNotFound),
		errors.Is(err, service.ErrTransferNotFound),
		errors.Is(err, service.ErrAllocationNotFound):
		c.JSON(http.StatusNotFound, apierror.WithCode(apierror.CodeNotFound, err.Error()))
	case errors.Is(err, service.ErrNoAllocationAtSource):
		c.JSON(http.StatusConflict, apierror.WithCode(apierror.CodeNoAllocation, err.Error()))
	case errors.Is(err, service.ErrSplitOrder):
		c.JSON(http.StatusConflict, apierror.WithCode(apierror.CodeSplitOrder, err.Error()))
	case errors.Is(err, service.ErrDuplicate):
		c.JSON(http.StatusConflict, apierror.WithCode(apierror.CodeConflict, err.Error()))
	case errors.Is(err, service.ErrInvalidTransfer):
		c.JSON(http.StatusUnprocessableEntity, apierror.WithCode(apierror.CodeInvalidTransfer, err.Error()))
	case errors.Is(err, service.ErrSafetyStockExceedsAllocation):
		c.JSON(http.StatusUnprocessableEntity, apierror.WithCode(apierror.CodeConflict, err.Error()))
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidDelta):
		c.JSON(http.StatusUnprocessableEntity, apierror.WithCode(apierror.CodeInvalidRequest, err.Error()))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		_ = c.Error(err)
		c.JSON(http.StatusGatewayTimeout, apierror.WithCode(apierror.CodeUnknownOutcome,
			"outcome unknown: re-read stock before retrying"))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, apierror.WithCode(apierror.CodeInternal, "internal server error"))
	}
}
