// seedstock seeds a demo business with products, warehouses
// and stock so the fulfillment and transfer endpoints have something to work on.
// Usage: go run ./cmd/seedstock [-business <uuid>]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/audit"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/config"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/dto"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/infra"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/repository"
	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var demoBusiness = uuid.MustParse("5b0c2a4e-8f1d-4c3a-9e57-2d6f0b1a7c11")

type seedProduct struct {
	sku    string
	name   string
	weight string
	stock  []int // per warehouse, same order as seedWarehouses
	safety int
}

var seedWarehouses = []dto.CreateWarehouseRequest{
	{Name: "Lagos Central", Region: "south-west", Capacity: 5000},
	{Name: "Abuja North", Region: "north-central", Capacity: 2000},
	{Name: "Port Harcourt Dock", Region: "south-south", Capacity: 0},
}

var seedProducts = []seedProduct{
	{sku: "WIDGET-1", name: "Steel widget", weight: "0.250", stock: []int{120, 40, 0}, safety: 10},
	{sku: "GADGET-7", name: "Gadget kit", weight: "1.800", stock: []int{15, 60, 25}, safety: 5},
	{sku: "CABLE-2M", name: "Braided cable 2m", weight: "0.090", stock: []int{300, 0, 80}, safety: 20},
}

func main() {
	business := flag.String("business", demoBusiness.String(), "business id that owns the products")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	businessID, err := uuid.Parse(*business)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -business")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect error")
	}
	store := repository.NewGormStore(db)
	emitter := audit.NewEmitter()
	catalog := service.NewCatalogService(store)
	ledger := service.NewLedgerService(store, emitter, cfg.LowStockThreshold)
	ctx := context.Background()

	warehouses := make([]string, len(seedWarehouses))
	existing, err := catalog.ListWarehouses(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list warehouses")
	}
	for i, req := range seedWarehouses {
		for _, w := range existing {
			if w.Name == req.Name {
				warehouses[i] = w.ID
			}
		}
		if warehouses[i] != "" {
			continue
		}
		w, err := catalog.CreateWarehouse(ctx, req)
		if err != nil {
			log.Fatal().Err(err).Str("warehouse", req.Name).Msg("create warehouse")
		}
		warehouses[i] = w.ID
	}

	for _, sp := range seedProducts {
		p, err := catalog.CreateProduct(ctx, dto.CreateProductRequest{
			BusinessID: businessID.String(),
			SKU:        sp.sku,
			Name:       sp.name,
			UnitWeight: decimal.RequireFromString(sp.weight),
		})
		if errors.Is(err, service.ErrDuplicate) {
			log.Info().Str("sku", sp.sku).Msg("product already seeded, skipping")
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Str("sku", sp.sku).Msg("create product")
		}

		for i, qty := range sp.stock {
			if qty == 0 {
				continue
			}
			if _, err := ledger.Receive(ctx, uuid.Nil, dto.ReceiveStockRequest{
				ProductID:   p.ID,
				WarehouseID: warehouses[i],
				Quantity:    qty,
				Reason:      "seed",
			}); err != nil {
				log.Fatal().Err(err).Str("sku", sp.sku).Msg("receive stock")
			}
			if sp.safety > 0 && sp.safety <= qty {
				if _, err := ledger.SetSafetyStock(ctx, uuid.Nil, dto.SafetyStockRequest{
					ProductID:   p.ID,
					WarehouseID: warehouses[i],
					SafetyStock: sp.safety,
				}); err != nil {
					log.Fatal().Err(err).Str("sku", sp.sku).Msg("set safety stock")
				}
			}
		}
		log.Info().Str("sku", p.SKU).Str("id", p.ID).Msg("product seeded")
	}

	fmt.Printf("✅ business %s seeded with %d products across %d warehouses\n",
		businessID, len(seedProducts), len(seedWarehouses))
}
