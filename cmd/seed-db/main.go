// Command seed-db fills an empty database with a demo catalog, a few coupons
// and an admin account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-faster/errors"
	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/catalog"
	"github.com/xenking/eshop/internal/domain/coupon"
	"github.com/xenking/eshop/internal/domain/query"
	"github.com/xenking/eshop/internal/domain/user"
	"github.com/xenking/eshop/internal/storage/postgres"
)

// departments maps each seeded category to its subcategories.
var departments = map[string][]string{
	"Electronics": {"Phones", "Laptops", "Audio"},
	"Home":        {"Kitchen", "Furniture", "Lighting"},
	"Fashion":     {"Shoes", "Bags", "Watches"},
	"Sports":      {"Fitness", "Cycling", "Outdoor"},
}

var demoCoupons = []struct {
	name     string
	discount int64
}{
	{"WELCOME10", 10},
	{"SPRING25", 25},
	{"VIP50", 50},
}

type options struct {
	databaseURL   string
	products      int
	brands        int
	seed          uint64
	adminEmail    string
	adminPassword string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.products, "products", 60, "number of products to create")
	flag.IntVar(&opts.brands, "brands", 8, "number of brands to create")
	flag.Uint64Var(&opts.seed, "seed", 42, "random seed of the generated catalog")
	flag.StringVar(&opts.adminEmail, "admin-email", os.Getenv("ESHOP_SEED_ADMIN_EMAIL"), "admin account email")
	flag.StringVar(&opts.adminPassword, "admin-password", os.Getenv("ESHOP_SEED_ADMIN_PASSWORD"), "admin account password")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, gofakeit.New(opts.seed), opts); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if opts.adminEmail != "" {
		if err := seedAdmin(ctx, postgres.NewUserRepository(pool), opts.adminEmail, opts.adminPassword); err != nil {
			return errors.Wrap(err, "seed admin")
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, f *gofakeit.Faker, opts options) error {
	var (
		categories    = postgres.NewCategoryTable(pool)
		subcategories = postgres.NewSubcategoryTable(pool)
		brands        = postgres.NewBrandTable(pool)
		products      = postgres.NewProductRepository(pool)
	)

	existing, _, err := categories.List(ctx, query.New(nil))
	if err != nil {
		return errors.Wrap(err, "list categories")
	}
	if len(existing) > 0 {
		slog.Info("catalog already seeded, skipping")
		return nil
	}

	type department struct {
		categoryID     string
		subcategoryIDs []string
	}
	var depts []department
	for name, subs := range departments {
		c := catalog.NewCategory(catalog.CategoryInput{
			Name:  name,
			Image: "categories/" + slug.Make(name) + ".jpeg",
		})
		if err := categories.Insert(ctx, c); err != nil {
			return errors.Wrapf(err, "insert category %s", name)
		}
		d := department{categoryID: c.ID}
		for _, subName := range subs {
			s, err := catalog.NewSubcategory(catalog.SubcategoryInput{Name: subName, CategoryID: c.ID})
			if err != nil {
				return errors.Wrapf(err, "build subcategory %s", subName)
			}
			if err := subcategories.Insert(ctx, s); err != nil {
				return errors.Wrapf(err, "insert subcategory %s", subName)
			}
			d.subcategoryIDs = append(d.subcategoryIDs, s.ID)
		}
		depts = append(depts, d)
	}
	slog.Info("categories created", slog.Int("count", len(depts)))

	brandIDs := make([]string, 0, opts.brands)
	seen := make(map[string]bool)
	for len(brandIDs) < opts.brands {
		name := truncate(f.Company(), 32)
		if seen[name] || len(name) < 2 {
			continue
		}
		seen[name] = true
		b := catalog.NewBrand(catalog.BrandInput{
			Name:  name,
			Image: "brands/" + slug.Make(name) + ".jpeg",
		})
		if err := brands.Insert(ctx, b); err != nil {
			return errors.Wrapf(err, "insert brand %s", name)
		}
		brandIDs = append(brandIDs, b.ID)
	}
	slog.Info("brands created", slog.Int("count", len(brandIDs)))

	for i := range opts.products {
		d := depts[f.Number(0, len(depts)-1)]
		brandID := brandIDs[f.Number(0, len(brandIDs)-1)]
		in := randomProduct(f, d.categoryID, d.subcategoryIDs[f.Number(0, len(d.subcategoryIDs)-1)], brandID)
		p, err := catalog.NewProduct(in)
		if err != nil {
			return errors.Wrapf(err, "build product %q", in.Title)
		}
		if err := products.Insert(ctx, p); err != nil {
			return errors.Wrapf(err, "insert product %q", in.Title)
		}
		if (i+1)%20 == 0 || i+1 == opts.products {
			slog.Info("product progress", slog.Int("written", i+1), slog.Int("total", opts.products))
		}
	}
	return nil
}

func randomProduct(f *gofakeit.Faker, categoryID, subcategoryID, brandID string) catalog.ProductInput {
	title := truncate(f.ProductName(), 100)
	desc := f.ProductDescription()
	if len(desc) < 20 {
		desc = fmt.Sprintf("%s. %s", title, desc)
	}
	price := decimal.NewFromFloat(f.Price(5, 500)).Round(2)
	in := catalog.ProductInput{
		Title:          title,
		Description:    truncate(desc, 2000),
		Quantity:       f.Number(0, 200),
		Price:          price,
		Colors:         []string{f.Color(), f.Color()},
		ImageCover:     "products/" + slug.Make(title) + "-cover.jpeg",
		Images:         []string{"products/" + slug.Make(title) + "-1.jpeg"},
		CategoryID:     categoryID,
		SubcategoryIDs: []string{subcategoryID},
		BrandID:        &brandID,
	}
	if f.Number(0, 3) == 0 {
		discounted := price.Mul(decimal.NewFromFloat(0.8)).Round(2)
		in.PriceAfterDiscount = &discounted
	}
	return in
}

func seedCoupons(ctx context.Context, coupons *postgres.CouponRepository) error {
	expire := time.Now().AddDate(0, 6, 0).UTC()
	for _, dc := range demoCoupons {
		c, err := coupon.New(coupon.Input{
			Name:     dc.name,
			Expire:   expire,
			Discount: decimal.NewFromInt(dc.discount),
		})
		if err != nil {
			return errors.Wrapf(err, "build coupon %s", dc.name)
		}
		if err := coupons.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", dc.name)
		}
	}
	slog.Info("coupons upserted", slog.Int("count", len(demoCoupons)))
	return nil
}

func seedAdmin(ctx context.Context, users *postgres.UserRepository, email, password string) error {
	_, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		slog.Info("admin already exists, skipping", slog.String("email", email))
		return nil
	case !apperr.IsKind(err, apperr.KindNotFound):
		return errors.Wrap(err, "lookup admin")
	}
	if password == "" {
		return errors.New("admin password is required: set --admin-password or ESHOP_SEED_ADMIN_PASSWORD")
	}
	u, err := user.New(user.CreateInput{
		Name:            "Store Admin",
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
		Role:            user.RoleAdmin,
	})
	if err != nil {
		return errors.Wrap(err, "build admin")
	}
	if err := users.Create(ctx, u); err != nil {
		return errors.Wrap(err, "create admin")
	}
	slog.Info("admin created", slog.String("email", u.Email))
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n])
}
