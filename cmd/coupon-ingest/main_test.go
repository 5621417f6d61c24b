package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eshop/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func names(list []*coupon.Coupon) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Name)
	}
	return out
}

func TestDeduper_FirstOccurrenceWins(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.csv.gz",
		"name,expire,discount",
		"spring25,2030-04-01T00:00:00Z,25",
		"# comment",
		"",
		"BROKEN,yesterday,10",
		"VIP,2030-01-01T00:00:00Z,150",
		"SUMMER,2030-07-01T00:00:00Z,15",
	)
	b := writeGz(t, dir, "b.csv.gz",
		"SPRING25,2031-04-01T00:00:00Z,30",
		"AUTUMN,2030-10-01T00:00:00Z,5",
		"too,many,fields,here",
		"autumn,2031-10-01T00:00:00Z,50",
	)

	unique, stats, err := deduper{capacity: 1000, fpr: 0.001}.run(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPRING25", "SUMMER", "AUTUMN"}, names(unique))
	assert.Equal(t, "25", unique[0].Discount.String(), "first file wins")
	assert.Equal(t, "5", unique[2].Discount.String(), "first line wins")
	assert.Equal(t, 2, stats.duplicates)
	assert.Equal(t, 3, stats.skipped)
}

func TestDeduper_FalsePositivesAreConfirmed(t *testing.T) {
	dir := t.TempDir()
	var first, second []string
	for i := range 40 {
		first = append(first, fmt.Sprintf("CODE%03d,2030-01-01T00:00:00Z,10", i))
		second = append(second, fmt.Sprintf("CODE%03d,2030-01-01T00:00:00Z,20", i+30))
	}
	files := []string{
		writeGz(t, dir, "first.csv.gz", first...),
		writeGz(t, dir, "second.csv.gz", second...),
	}

	// A one-element filter with a high error rate reports almost every name.
	unique, stats, err := deduper{capacity: 1, fpr: 0.9}.run(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, unique, 70)
	assert.Equal(t, 10, stats.duplicates)
	assert.Greater(t, stats.candidates, stats.duplicates)
	for i, c := range unique {
		assert.Equal(t, fmt.Sprintf("CODE%03d", i), c.Name)
		want := "10"
		if i >= 40 {
			want = "20"
		}
		assert.Equal(t, want, c.Discount.String(), c.Name)
	}
}

func TestDeduper_MissingFile(t *testing.T) {
	_, _, err := deduper{capacity: 10, fpr: 0.01}.run(context.Background(), []string{filepath.Join(t.TempDir(), "nope.csv.gz")})
	require.Error(t, err)
}

type recordingRepo struct {
	mu    sync.Mutex
	names []string
	fail  string
}

func (r *recordingRepo) Upsert(_ context.Context, c *coupon.Coupon) error {
	if c.Name == r.fail {
		return errors.New("constraint violated")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, c.Name)
	return nil
}

func TestWriteCoupons(t *testing.T) {
	var list []*coupon.Coupon
	for _, line := range []string{
		"ONE,2030-01-01T00:00:00Z,10",
		"TWO,2030-01-01T00:00:00Z,20",
		"THREE,2030-01-01T00:00:00Z,30",
	} {
		c, err := parseLine(line)
		require.NoError(t, err)
		list = append(list, c)
	}

	repo := &recordingRepo{}
	require.NoError(t, writeCoupons(context.Background(), repo, list))
	assert.ElementsMatch(t, []string{"ONE", "TWO", "THREE"}, repo.names)

	err := writeCoupons(context.Background(), &recordingRepo{fail: "TWO"}, list)
	require.ErrorContains(t, err, "upsert coupon TWO")
}
