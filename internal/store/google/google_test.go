package google

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackbus/internal/core"
	"trackbus/internal/store"
)

// fakeValues keeps one matrix per tab.
type fakeValues struct {
	mu      sync.Mutex
	tabs    map[string][][]any
	getErr  error
	appends int
}

func newFakeValues() *fakeValues {
	return &fakeValues{tabs: map[string][][]any{}}
}

func (f *fakeValues) Get(_ context.Context, _ string, rng string) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	tab, part, _ := strings.Cut(rng, "!")
	vals := f.tabs[tab]
	if part == "1:1" {
		if len(vals) == 0 {
			return nil, nil
		}
		return vals[:1], nil
	}
	return vals, nil
}

func (f *fakeValues) Append(_ context.Context, _ string, rng string, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, _, _ := strings.Cut(rng, "!")
	f.tabs[tab] = append(f.tabs[tab], rows...)
	f.appends++
	return nil
}

func (f *fakeValues) set(tab string, rows [][]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs[tab] = rows
}

func (f *fakeValues) failGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

type collector struct {
	mu    sync.Mutex
	snaps [][]store.Record
	errs  []error
}

func (c *collector) snapshot(r []store.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, r)
}

func (c *collector) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snaps), len(c.errs)
}

func (c *collector) last() []store.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snaps) == 0 {
		return nil
	}
	return c.snaps[len(c.snaps)-1]
}

func testStore(values valuesAPI) *Store {
	return newStore(Config{SpreadsheetID: "sheet", PollInterval: 10 * time.Millisecond, RequestsPerSec: 1000}, values, nil)
}

func TestParseRows(t *testing.T) {
	values := [][]any{
		{"id", "name", "moneyInvested", "investmentDate"},
		{"p1", "Alice", "600", "2024-01-15"},
		{"", "Bob", "400"},
		{"", "", "", ""},
		{"p3", " Carol ", ""},
	}
	recs := parseRows(values)
	require.Len(t, recs, 3)

	assert.Equal(t, "p1", recs[0].ID)
	assert.Equal(t, "600", recs[0].Fields["moneyInvested"])
	assert.Equal(t, "2024-01-15", recs[0].Fields["investmentDate"])

	assert.Equal(t, "row:3", recs[1].ID)
	_, ok := recs[1].Fields["investmentDate"]
	assert.False(t, ok)

	assert.Equal(t, "Carol", recs[2].Fields["name"])
	assert.Nil(t, parseRows(nil))
}

func TestBuildRow(t *testing.T) {
	header := []string{"id", "description", "totalCost", "date", "unknown"}
	row := buildRow(header, "abc", map[string]any{
		"description": "fuel",
		"totalCost":   decimal.RequireFromString("30.00"),
		"date":        core.NewDate(2024, 5, 6),
	})
	assert.Equal(t, []any{"abc", "fuel", "30", "2024-05-06", ""}, row)
}

func TestSubscribeAndAdd(t *testing.T) {
	fv := newFakeValues()
	s := testStore(fv)
	ctx := context.Background()

	col := &collector{}
	unsub, err := s.Subscribe(ctx, store.Expenses, col.snapshot, col.fail)
	require.NoError(t, err)
	defer unsub()
	snaps, _ := col.counts()
	require.Equal(t, 1, snaps)
	assert.Empty(t, col.last())

	id, err := s.Add(ctx, store.Expenses, map[string]any{
		core.FieldDescription: "court",
		core.FieldTotalCost:   decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	// Empty tab gets a header row first.
	assert.Equal(t, defaultHeader(store.Expenses), toStrings(fv.tabs["Expenses"][0]))

	recs := col.last()
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Equal(t, "30", recs[0].Fields[core.FieldTotalCost])

	_, err = s.Add(ctx, store.Expenses, map[string]any{core.FieldDescription: "second"})
	require.NoError(t, err)
	assert.Len(t, fv.tabs["Expenses"], 3)
}

func TestPollSkipsUnchanged(t *testing.T) {
	fv := newFakeValues()
	fv.set("Partners", [][]any{{"id", "name"}, {"p1", "Alice"}})
	s := testStore(fv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	col := &collector{}
	unsub, err := s.Subscribe(ctx, store.Partners, col.snapshot, col.fail)
	require.NoError(t, err)
	defer unsub()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	snaps, _ := col.counts()
	assert.Equal(t, 1, snaps)

	fv.set("Partners", [][]any{{"id", "name"}, {"p1", "Alice"}, {"p2", "Bob"}})
	require.Eventually(t, func() bool { return len(col.last()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestReadFailureReportedOnceThenRecovers(t *testing.T) {
	fv := newFakeValues()
	fv.set("Sales", [][]any{{"id", "totalSalePrice"}, {"s1", "10"}})
	s := testStore(fv)
	ctx := context.Background()

	col := &collector{}
	unsub, err := s.Subscribe(ctx, store.Sales, col.snapshot, col.fail)
	require.NoError(t, err)
	defer unsub()

	fv.failGets(errors.New("403 forbidden"))
	assert.ErrorIs(t, s.refresh(ctx, store.Sales, false), store.ErrUnavailable)
	s.refresh(ctx, store.Sales, false)
	_, errs := col.counts()
	assert.Equal(t, 1, errs)

	fv.failGets(nil)
	require.NoError(t, s.refresh(ctx, store.Sales, false))
	snaps, _ := col.counts()
	assert.Equal(t, 2, snaps, "recovery delivers even when content is unchanged")
}

func TestAddFailsWhenSheetUnreachable(t *testing.T) {
	fv := newFakeValues()
	fv.failGets(errors.New("dial tcp: timeout"))
	s := testStore(fv)
	_, err := s.Add(context.Background(), store.Sales, map[string]any{})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Zero(t, fv.appends)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.Error(t, err)
	_, err = New(context.Background(), Config{SpreadsheetID: "x"}, nil)
	assert.Error(t, err)
}
