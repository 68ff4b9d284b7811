// Package main provides a CLI tool for seeding the database with demo
// locations and stock, and for minting development tokens.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"stockledger/internal/config"
	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/security"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/pkg/logger"
)

type demoItem struct {
	code, name, category string
	class                ledger.ABCClass
	cost                 string
	stock                map[string]int64
}

var demoLocations = []struct{ code, name, zone string }{
	{"A1", "Aisle A bay 1", "north"},
	{"A2", "Aisle A bay 2", "north"},
	{"B1", "Aisle B bay 1", "south"},
	{"DOCK", "Receiving dock", "dock"},
}

var demoItems = []demoItem{
	{"BOLT-M8", "Hex bolt M8", "fasteners", ledger.ClassA, "0.35", map[string]int64{"A1": 400, "A2": 150}},
	{"NUT-M8", "Hex nut M8", "fasteners", ledger.ClassA, "0.12", map[string]int64{"A1": 600}},
	{"WR-13", "Combination wrench 13mm", "tools", ledger.ClassB, "8.90", map[string]int64{"B1": 24}},
	{"GLV-L", "Work gloves L", "safety", ledger.ClassC, "3.20", map[string]int64{"B1": 60, "DOCK": 12}},
}

func main() {
	tokensOnly := flag.Bool("tokens-only", false, "print development tokens without touching the database")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := printTokens(cfg.JWTSecret); err != nil {
		log.Fatalw("failed to mint tokens", "error", err)
	}
	if *tokensOnly {
		return
	}

	ctx := security.WithUserID(context.Background(), "seed")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	txm := postgres.NewTxManager(pool)
	locations := location.NewService(catalog_repo.NewLocationRepo(txm), txm)
	ledgerSvc := ledger.NewService(ledger.ServiceConfig{
		Items:     catalog_repo.NewStockItemRepo(txm),
		Movements: register_repo.NewMovementRepo(txm),
		TxManager: txm,
		Events:    postgres.NewOutboxPublisher(txm),
	})

	if err := seedLocations(ctx, locations, log); err != nil {
		log.Fatalw("failed to seed locations", "error", err)
	}
	if err := seedItems(ctx, ledgerSvc, log); err != nil {
		log.Fatalw("failed to seed items", "error", err)
	}

	log.Info("seeding completed successfully")
}

// printTokens mints one long-lived token per role for local testing.
func printTokens(secret string) error {
	jwtCfg := auth.DefaultJWTConfig(secret)
	jwtCfg.AccessTokenTTL = 30 * 24 * time.Hour
	jwtSvc := auth.NewJWTService(jwtCfg)

	for _, role := range []string{security.RoleAdmin, security.RoleSupervisor, security.RoleManager, security.RoleCounter} {
		tok, _, err := jwtSvc.GenerateAccessToken(appctx.UserContext{
			UserID:      "dev-" + role,
			Email:       role + "@stockledger.local",
			Roles:       []string{role},
			Permissions: security.DefaultPermissions(role),
			IsAdmin:     role == security.RoleAdmin,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%-10s %s\n", role, tok)
	}
	return nil
}

func seedLocations(ctx context.Context, svc *location.Service, log *logger.Logger) error {
	for _, l := range demoLocations {
		err := svc.Create(ctx, location.NewLocation(l.code, l.name, l.zone))
		if apperror.HasCode(err, apperror.CodeDuplicate) {
			log.Infow("location exists, skipping", "code", l.code)
			continue
		}
		if err != nil {
			return fmt.Errorf("location %s: %w", l.code, err)
		}
		log.Infow("location created", "code", l.code, "zone", l.zone)
	}
	return nil
}

func seedItems(ctx context.Context, svc *ledger.Service, log *logger.Logger) error {
	for _, d := range demoItems {
		item := ledger.NewStockItem(d.code, d.name)
		item.Category = d.category
		item.ABCClass = d.class
		item.UnitCost = types.MustMoney(d.cost)

		err := svc.CreateItem(ctx, item)
		if apperror.HasCode(err, apperror.CodeDuplicate) {
			log.Infow("item exists, skipping", "code", d.code)
			continue
		}
		if err != nil {
			return fmt.Errorf("item %s: %w", d.code, err)
		}

		for loc, qty := range d.stock {
			if _, err := svc.Receipt(ctx, ledger.Command{
				ItemID:    item.ID,
				Quantity:  qty,
				To:        loc,
				Reference: "seed",
			}); err != nil {
				return fmt.Errorf("receipt %s at %s: %w", d.code, loc, err)
			}
		}
		log.Infow("item created", "code", d.code, "locations", len(d.stock))
	}
	return nil
}
