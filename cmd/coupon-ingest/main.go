// Command coupon-ingest loads coupons from gzip-compressed CSV exports.
//
// Every line has the form NAME,EXPIRE,DISCOUNT where EXPIRE is an RFC 3339
// timestamp and DISCOUNT a percentage. Files are decompressed concurrently.
// When a name occurs more than once the first occurrence wins, in the order
// the files are given. Duplicates are found with one bloom filter per file
// and only names the filters report are checked exactly. Existing coupons
// with the same name are updated.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/eshop/internal/domain/coupon"
	"github.com/xenking/eshop/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	writers       = 8
)

func main() {
	var (
		dataDir     string
		databaseURL string
		dryRun      bool
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory with *.csv.gz files, used when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
		if err != nil {
			slog.Error("list data files", slog.String("error", err.Error()))
			os.Exit(1)
		}
		files = matches
	}
	if len(files) == 0 {
		slog.Error("no input files", slog.String("data_dir", dataDir))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, dryRun); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, dryRun bool) error {
	d := deduper{capacity: bloomCapacity, fpr: bloomFPR}
	coupons, stats, err := d.run(ctx, files)
	if err != nil {
		return errors.Wrap(err, "deduplicate coupons")
	}
	slog.Info("coupons parsed",
		slog.Int("files", len(files)),
		slog.Int("unique", len(coupons)),
		slog.Int("duplicates", stats.duplicates),
		slog.Int("candidates", stats.candidates),
		slog.Int("skipped", stats.skipped),
	)
	if dryRun || len(coupons) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCoupons(ctx, postgres.NewCouponRepository(pool), coupons); err != nil {
		return errors.Wrap(err, "write coupons")
	}
	return nil
}

// position locates a coupon line across the input files.
type position struct {
	file, line int
}

type entry struct {
	line   int
	coupon *coupon.Coupon
}

type dedupeStats struct {
	duplicates int
	// candidates is the number of lines the filters could not clear.
	candidates int
	skipped    int
}

// deduper keeps the first coupon of every name across files without holding
// every name in memory. Files are streamed three times:
//
//  1. one bloom filter per file is built concurrently;
//  2. every file is re-streamed against the filters of the files before it
//     and a filter of its own earlier lines; a name no filter contains is a
//     first occurrence;
//  3. names some filter did contain are resolved exactly by streaming the
//     files in order and recording where each of them first appears.
type deduper struct {
	capacity uint
	fpr      float64
}

func (d deduper) run(ctx context.Context, files []string) ([]*coupon.Coupon, dedupeStats, error) {
	var stats dedupeStats

	filters, skipped, err := d.buildFilters(ctx, files)
	if err != nil {
		return nil, stats, errors.Wrap(err, "build filters")
	}
	stats.skipped = skipped

	kept, candidates, err := d.classify(ctx, files, filters)
	if err != nil {
		return nil, stats, errors.Wrap(err, "classify")
	}
	for _, c := range candidates {
		stats.candidates += len(c)
	}

	confirmed, err := confirm(ctx, files, candidates)
	if err != nil {
		return nil, stats, errors.Wrap(err, "confirm candidates")
	}

	var unique []*coupon.Coupon
	for i := range files {
		list := append(kept[i], confirmed[i]...)
		slices.SortFunc(list, func(a, b entry) int { return a.line - b.line })
		for _, e := range list {
			unique = append(unique, e.coupon)
		}
	}
	stats.duplicates = stats.candidates
	for _, c := range confirmed {
		stats.duplicates -= len(c)
	}
	return unique, stats, nil
}

func (d deduper) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, int, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	skipped := make([]int, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(d.capacity, d.fpr)
			var count int
			n, err := scanFile(ctx, path, true, func(_ int, c *coupon.Coupon) {
				filter.AddString(c.Name)
				count++
			})
			if err != nil {
				return err
			}
			slog.Info("file parsed",
				slog.String("file", filepath.Base(path)),
				slog.Int("coupons", count),
				slog.Int("skipped", n),
			)
			filters[i], skipped[i] = filter, n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	var total int
	for _, n := range skipped {
		total += n
	}
	return filters, total, nil
}

// classify splits the coupons of every file into certain first occurrences
// and candidates that may repeat an earlier name.
func (d deduper) classify(ctx context.Context, files []string, filters []*bloom.BloomFilter) (kept, candidates [][]entry, _ error) {
	kept = make([][]entry, len(files))
	candidates = make([][]entry, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			here := bloom.NewWithEstimates(d.capacity, d.fpr)
			_, err := scanFile(ctx, path, false, func(line int, c *coupon.Coupon) {
				e := entry{line: line, coupon: c}
				if here.TestAndAddString(c.Name) || seenBefore(filters[:i], c.Name) {
					candidates[i] = append(candidates[i], e)
					return
				}
				kept[i] = append(kept[i], e)
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return kept, candidates, nil
}

func seenBefore(filters []*bloom.BloomFilter, name string) bool {
	for _, f := range filters {
		if f.TestString(name) {
			return true
		}
	}
	return false
}

// confirm keeps the candidates that are in fact the first line of their
// name. Only candidate names are tracked.
func confirm(ctx context.Context, files []string, candidates [][]entry) ([][]entry, error) {
	first := make(map[string]*position)
	for _, list := range candidates {
		for _, e := range list {
			first[e.coupon.Name] = nil
		}
	}
	confirmed := make([][]entry, len(files))
	if len(first) == 0 {
		return confirmed, nil
	}

	for i, path := range files {
		_, err := scanFile(ctx, path, false, func(line int, c *coupon.Coupon) {
			if pos, ok := first[c.Name]; ok && pos == nil {
				first[c.Name] = &position{file: i, line: line}
			}
		})
		if err != nil {
			return nil, err
		}
	}

	for i, list := range candidates {
		for _, e := range list {
			if pos := first[e.coupon.Name]; pos != nil && *pos == (position{file: i, line: e.line}) {
				confirmed[i] = append(confirmed[i], e)
			}
		}
	}
	return confirmed, nil
}

// scanFile streams a gzip-compressed file and calls fn for every valid
// coupon with its line number. It returns the number of invalid lines.
func scanFile(ctx context.Context, path string, warn bool, fn func(line int, c *coupon.Coupon)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	skipped, err := parse(ctx, gz, func(line int, c *coupon.Coupon, perr error) {
		if perr != nil {
			if warn {
				slog.Warn("skipping line",
					slog.String("file", filepath.Base(path)),
					slog.Int("line", line),
					slog.String("error", perr.Error()),
				)
			}
			return
		}
		fn(line, c)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", path)
	}
	return skipped, nil
}

// parse reads NAME,EXPIRE,DISCOUNT lines. Blank lines, comments and a header
// line are ignored. Lines that fail validation are reported with their error
// and counted.
func parse(ctx context.Context, r io.Reader, fn func(line int, c *coupon.Coupon, err error)) (skipped int, err error) {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.EqualFold(text, "name,expire,discount") {
			continue
		}
		c, err := parseLine(text)
		if err != nil {
			skipped++
		}
		fn(line, c, err)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return skipped, nil
}

func parseLine(text string) (*coupon.Coupon, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 3 {
		return nil, errors.Errorf("want 3 fields, got %d", len(fields))
	}
	if strings.TrimSpace(fields[0]) == "" {
		return nil, errors.New("empty name")
	}
	expire, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, errors.Wrap(err, "expire")
	}
	discount, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return nil, errors.Wrap(err, "discount")
	}
	return coupon.New(coupon.Input{
		Name:     strings.TrimSpace(fields[0]),
		Expire:   expire,
		Discount: discount,
	})
}

type upserter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

func writeCoupons(ctx context.Context, repo upserter, coupons []*coupon.Coupon) error {
	slog.Info("writing coupons", slog.Int("count", len(coupons)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writers)
	for _, c := range coupons {
		g.Go(func() error {
			if err := repo.Upsert(ctx, c); err != nil {
				return errors.Wrapf(err, "upsert coupon %s", c.Name)
			}
			return nil
		})
	}
	return g.Wait()
}
