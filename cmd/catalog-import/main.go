// Command catalog-import bulk-loads the price cache from gzipped JSONL dumps
// of the upstream catalog. It exists for bootstrapping a fresh deployment:
// once the service is live, the cache updater keeps the cache current from
// catalog events alone.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pizza-orders/internal/domain/catalog"
	"github.com/xenking/pizza-orders/internal/repository"
)

const progressEvery = 10_000

type productLine struct {
	ID                 string                         `json:"id"`
	PriceConfiguration map[string]catalog.OptionGroup `json:"priceConfiguration"`
}

type toppingLine struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		toppingsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "gzipped JSONL dump of products")
	flag.StringVar(&toppingsFile, "toppings-file", "", "gzipped JSONL dump of toppings")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if productsFile == "" && toppingsFile == "" {
		slog.Error("nothing to import: set --products-file and/or --toppings-file")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, toppingsFile); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, toppingsFile string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	cache := repository.NewPriceCacheRepository(pool)

	g, ctx := errgroup.WithContext(ctx)
	if productsFile != "" {
		g.Go(func() error {
			return importProducts(ctx, cache, productsFile)
		})
	}
	if toppingsFile != "" {
		g.Go(func() error {
			return importToppings(ctx, cache, toppingsFile)
		})
	}
	return g.Wait()
}

func importProducts(ctx context.Context, cache *repository.PriceCacheRepository, path string) error {
	var count uint64
	err := streamGzLines(ctx, path, func(line []byte) error {
		var p productLine
		if err := json.Unmarshal(line, &p); err != nil {
			return errors.Wrap(err, "parse product line")
		}
		if p.ID == "" {
			return errors.New("product line without id")
		}
		if err := cache.UpsertProduct(ctx, catalog.ProductPricing{
			ProductID:          p.ID,
			PriceConfiguration: p.PriceConfiguration,
		}); err != nil {
			return err
		}
		count++
		if count%progressEvery == 0 {
			slog.Info("product import progress", slog.Uint64("count", count))
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "import products from %s", path)
	}

	slog.Info("products imported", slog.Uint64("count", count))
	return nil
}

func importToppings(ctx context.Context, cache *repository.PriceCacheRepository, path string) error {
	var count uint64
	err := streamGzLines(ctx, path, func(line []byte) error {
		var t toppingLine
		if err := json.Unmarshal(line, &t); err != nil {
			return errors.Wrap(err, "parse topping line")
		}
		if t.ID == "" {
			return errors.New("topping line without id")
		}
		if err := cache.UpsertTopping(ctx, catalog.ToppingPricing{
			ToppingID: t.ID,
			Price:     t.Price,
		}); err != nil {
			return err
		}
		count++
		if count%progressEvery == 0 {
			slog.Info("topping import progress", slog.Uint64("count", count))
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "import toppings from %s", path)
	}

	slog.Info("toppings imported", slog.Uint64("count", count))
	return nil
}

// streamGzLines opens a gzip-compressed file and calls fn for each non-empty
// line.
func streamGzLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
