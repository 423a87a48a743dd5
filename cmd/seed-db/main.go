// Command seed-db provisions a development database: schema, demo coupons
// and customers, and staff API keys for the status update endpoint.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-orders/internal/domain/auth"
	"github.com/xenking/pizza-orders/internal/domain/coupon"
	"github.com/xenking/pizza-orders/internal/domain/customer"
	"github.com/xenking/pizza-orders/internal/handler"
	"github.com/xenking/pizza-orders/internal/repository"
)

const demoTenant = "tenant-1"

func main() {
	var (
		databaseURL string
		adminKey    string
		managerKey  string
		pepper      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or ORDERS_SEED_ADMIN_KEY env)")
	flag.StringVar(&managerKey, "manager-key", "", "manager API key to seed (or ORDERS_SEED_MANAGER_KEY env)")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORDERS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("ORDERS_SEED_ADMIN_KEY")
	}
	if managerKey == "" {
		managerKey = os.Getenv("ORDERS_SEED_MANAGER_KEY")
	}
	if pepper == "" {
		pepper = os.Getenv("ORDERS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, adminKey, managerKey, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, adminKey, managerKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedCustomers(ctx, repository.NewCustomerRepository(pool)); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedAPIKeys(ctx, repository.NewAPIKeyRepository(pool), adminKey, managerKey, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding demo coupons")

	validTill := time.Now().AddDate(1, 0, 0)
	coupons := []coupon.Coupon{
		{
			ID:        uuid.New().String(),
			Title:     "Welcome: 10% off",
			Code:      "WELCOME10",
			Discount:  decimal.NewFromInt(10),
			TenantID:  demoTenant,
			ValidTill: validTill,
		},
		{
			ID:        uuid.New().String(),
			Title:     "Happy Hours: 18% off",
			Code:      "HAPPYHRS",
			Discount:  decimal.NewFromInt(18),
			TenantID:  demoTenant,
			ValidTill: validTill,
		},
	}

	for i := range coupons {
		if err := repo.Create(ctx, &coupons[i]); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", coupons[i].Code)
		}
		slog.Info("upserted coupon", slog.String("code", coupons[i].Code))
	}

	return nil
}

func seedCustomers(ctx context.Context, repo *repository.CustomerRepository) error {
	slog.Info("seeding demo customers")

	customers := []customer.Customer{
		{ID: "cust-1", UserID: "user-1", FirstName: "Asha", LastName: "Kulkarni", Email: "asha@example.com"},
		{ID: "cust-2", UserID: "user-2", FirstName: "Rohan", LastName: "Mehta", Email: "rohan@example.com"},
	}

	for i := range customers {
		if err := repo.Upsert(ctx, &customers[i]); err != nil {
			return errors.Wrapf(err, "upsert customer %s", customers[i].ID)
		}
		slog.Info("upserted customer", slog.String("id", customers[i].ID))
	}

	return nil
}

func seedAPIKeys(ctx context.Context, repo *repository.APIKeyRepository, adminKey, managerKey, pepper string) error {
	if adminKey == "" && managerKey == "" {
		slog.Info("no API keys provided, skipping")
		return nil
	}

	slog.Info("seeding staff API keys")

	if adminKey != "" {
		if err := repo.Upsert(ctx, &auth.APIKeyInfo{
			ID:      "seed-admin",
			KeyHash: handler.HashAPIKey(adminKey, []byte(pepper)),
			Name:    "Seeded admin key",
			Role:    auth.RoleAdmin,
		}); err != nil {
			return errors.Wrap(err, "upsert admin key")
		}
		slog.Info("upserted API key", slog.String("id", "seed-admin"), slog.String("role", auth.RoleAdmin))
	}

	if managerKey != "" {
		if err := repo.Upsert(ctx, &auth.APIKeyInfo{
			ID:       "seed-manager",
			KeyHash:  handler.HashAPIKey(managerKey, []byte(pepper)),
			Name:     "Seeded manager key",
			Role:     auth.RoleManager,
			TenantID: demoTenant,
		}); err != nil {
			return errors.Wrap(err, "upsert manager key")
		}
		slog.Info("upserted API key", slog.String("id", "seed-manager"), slog.String("role", auth.RoleManager))
	}

	return nil
}
