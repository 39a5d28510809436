package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"

	"github.com/google/uuid"
)

// CatalogService manages the products and warehouses that ledger rows refer
// to. Both are owned by external collaborators; the engine keeps only what it
// needs to resolve references.
type CatalogService interface {
	CreateProduct(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error)
	ListProducts(ctx context.Context, businessID uuid.UUID) ([]dto.ProductResponse, error)
	CreateWarehouse(ctx context.Context, req dto.CreateWarehouseRequest) (*dto.WarehouseResponse, error)
	GetWarehouse(ctx context.Context, id uuid.UUID) (*dto.WarehouseResponse, error)
	ListWarehouses(ctx context.Context) ([]dto.WarehouseResponse, error)
}

type catalogService struct {
	store repository.Store
}

func NewCatalogService(store repository.Store) CatalogService {
	return &catalogService{store: store}
}

func (s *catalogService) CreateProduct(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("%w: business_id: %v", ErrInvalidRequest, err)
	}
	sku := model.NormalizeSKU(req.SKU)
	if sku == "" {
		return nil, fmt.Errorf("%w: sku is required", ErrInvalidRequest)
	}
	if req.UnitWeight.IsNegative() {
		return nil, fmt.Errorf("%w: unit_weight must not be negative", ErrInvalidRequest)
	}

	p := &model.Product{
		BusinessID: businessID,
		SKU:        sku,
		Name:       req.Name,
		UnitWeight: req.UnitWeight,
	}
	if err := s.store.Products().Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: sku %s", ErrDuplicate, sku)
		}
		return nil, storageErr("create product", err)
	}
	return productToResponse(p), nil
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	p, err := findProduct(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return productToResponse(p), nil
}

func (s *catalogService) ListProducts(ctx context.Context, businessID uuid.UUID) ([]dto.ProductResponse, error) {
	products, err := s.store.Products().List(ctx, businessID)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	out := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		out = append(out, *productToResponse(&products[i]))
	}
	return out, nil
}

func (s *catalogService) CreateWarehouse(ctx context.Context, req dto.CreateWarehouseRequest) (*dto.WarehouseResponse, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if req.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must not be negative", ErrInvalidRequest)
	}
	w := &model.Warehouse{Name: req.Name, Region: req.Region, Capacity: req.Capacity}
	if err := s.store.Warehouses().Create(ctx, w); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: warehouse %q", ErrDuplicate, req.Name)
		}
		return nil, storageErr("create warehouse", err)
	}
	return warehouseToResponse(w), nil
}

func (s *catalogService) GetWarehouse(ctx context.Context, id uuid.UUID) (*dto.WarehouseResponse, error) {
	w, err := findWarehouse(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return warehouseToResponse(w), nil
}

func (s *catalogService) ListWarehouses(ctx context.Context) ([]dto.WarehouseResponse, error) {
	warehouses, err := s.store.Warehouses().List(ctx)
	if err != nil {
		return nil, storageErr("list warehouses", err)
	}
	out := make([]dto.WarehouseResponse, 0, len(warehouses))
	for i := range warehouses {
		out = append(out, *warehouseToResponse(&warehouses[i]))
	}
	return out, nil
}

// ── shared lookups ────────────────────────────────────────────────────────────

func findProduct(ctx context.Context, repos repository.Repositories, id uuid.UUID) (*model.Product, error) {
	p, err := repos.Products().FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, storageErr("find product", err)
	}
	return p, nil
}

func findWarehouse(ctx context.Context, repos repository.Repositories, id uuid.UUID) (*model.Warehouse, error) {
	w, err := repos.Warehouses().FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWarehouseNotFound, id)
	}
	if err != nil {
		return nil, storageErr("find warehouse", err)
	}
	return w, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, field, err)
	}
	return id, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func productToResponse(p *model.Product) *dto.ProductResponse {
	return &dto.ProductResponse{
		ID:         p.ID.String(),
		BusinessID: p.BusinessID.String(),
		SKU:        p.SKU,
		Name:       p.Name,
		UnitWeight: p.UnitWeight,
		CreatedAt:  formatTime(p.CreatedAt),
	}
}

func warehouseToResponse(w *model.Warehouse) *dto.WarehouseResponse {
	return &dto.WarehouseResponse{
		ID:        w.ID.String(),
		Name:      w.Name,
		Region:    w.Region,
		Capacity:  w.Capacity,
		CreatedAt: formatTime(w.CreatedAt),
	}
}
