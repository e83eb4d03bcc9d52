// Package storagetest holds the behavioural suite every storage.Gateway
// implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// Factory returns an empty gateway. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) storage.Gateway

func day(y, m, d int) *time.Time {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

func fields(cents int64, cat core.Category, date *time.Time, note string) core.Fields {
	return core.Fields{
		Amount:   &core.Money{Cents: cents},
		Date:     date,
		Category: string(cat),
		Note:     note,
	}
}

// Run executes the suite against gateways produced by newGateway.
func Run(t *testing.T, newGateway Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newGateway(t)) })
	t.Run("InsertDefaultsDate", func(t *testing.T) { testInsertDefaultsDate(t, newGateway(t)) })
	t.Run("ListOrderAndFilter", func(t *testing.T) { testListOrderAndFilter(t, newGateway(t)) })
	t.Run("Replace", func(t *testing.T) { testReplace(t, newGateway(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newGateway(t)) })
	t.Run("DeleteAll", func(t *testing.T) { testDeleteAll(t, newGateway(t)) })
	t.Run("UnknownIDs", func(t *testing.T) { testUnknownIDs(t, newGateway(t)) })
	t.Run("Aggregate", func(t *testing.T) { testAggregate(t, newGateway(t)) })
	t.Run("FarDates", func(t *testing.T) { testFarDates(t, newGateway(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newGateway(t).Ping(context.Background())) })
}

func testInsertAndGet(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	created, err := g.Insert(ctx, fields(4250, core.CategoryFoodDining, day(2024, 3, 15), "Lunch"))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(4250), created.Amount.Cents)
	assert.Equal(t, core.CategoryFoodDining, created.Category)
	assert.Equal(t, "Lunch", created.Note)
	assert.True(t, created.Date.Equal(*day(2024, 3, 15)))
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	got, err := g.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Amount, got.Amount)
	assert.True(t, got.Date.Equal(created.Date))
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func testInsertDefaultsDate(t *testing.T, g storage.Gateway) {
	created, err := g.Insert(context.Background(), fields(100, core.CategoryOther, nil, "undated"))
	require.NoError(t, err)
	assert.False(t, created.Date.IsZero())
	assert.WithinDuration(t, created.CreatedAt, created.Date, time.Second)
}

func testListOrderAndFilter(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	for _, f := range []core.Fields{
		fields(1000, core.CategoryFoodDining, day(2024, 1, 10), "a"),
		fields(2000, core.CategoryTravel, day(2024, 3, 1), "b"),
		fields(3000, core.CategoryFoodDining, day(2024, 2, 20), "c"),
	} {
		_, err := g.Insert(ctx, f)
		require.NoError(t, err)
	}

	all, err := g.List(ctx, core.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "c", "a"}, notes(all))

	food, err := g.List(ctx, core.Filter{Category: core.CategoryFoodDining})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, notes(food))

	// Both bounds are inclusive.
	window, err := g.List(ctx, core.Filter{StartDate: day(2024, 1, 10), EndDate: day(2024, 2, 20)})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, notes(window))

	none, err := g.List(ctx, core.Filter{Category: core.CategoryHealthcare})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testReplace(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	created, err := g.Insert(ctx, fields(500, core.CategoryShopping, day(2024, 5, 1), "shoes"))
	require.NoError(t, err)

	updated, err := g.Replace(ctx, created.ID, fields(750, core.CategoryEntertainment, day(2024, 5, 2), "movie"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, int64(750), updated.Amount.Cents)
	assert.Equal(t, core.CategoryEntertainment, updated.Category)
	assert.Equal(t, "movie", updated.Note)
	assert.True(t, updated.Date.Equal(*day(2024, 5, 2)))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	got, err := g.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "movie", got.Note)
}

func testDelete(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	created, err := g.Insert(ctx, fields(900, core.CategoryBills, day(2024, 4, 4), "power"))
	require.NoError(t, err)

	removed, err := g.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed.ID)
	assert.Equal(t, "power", removed.Note)

	_, err = g.Get(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = g.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteAll(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	n, err := g.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := 0; i < 3; i++ {
		_, err := g.Insert(ctx, fields(100, core.CategoryOther, day(2024, 1, i+1), "x"))
		require.NoError(t, err)
	}
	n, err = g.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := g.List(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testUnknownIDs(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	for _, id := range []string{"does-not-exist", "65f0c0ffee0000000000abcd", ""} {
		_, err := g.Get(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, "get %q", id)
		_, err = g.Replace(ctx, id, fields(100, core.CategoryOther, day(2024, 1, 1), "x"))
		assert.ErrorIs(t, err, storage.ErrNotFound, "replace %q", id)
		_, err = g.Delete(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, "delete %q", id)
	}
}

func testAggregate(t *testing.T, g storage.Gateway) {
	ctx := context.Background()

	empty, err := g.Aggregate(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Total.TotalCount)
	assert.NotNil(t, empty.Categories)
	assert.NotNil(t, empty.Monthly)

	for _, f := range []core.Fields{
		fields(1000, core.CategoryFoodDining, day(2024, 1, 10), "a"),
		fields(2001, core.CategoryTravel, day(2024, 3, 1), "b"),
		fields(3000, core.CategoryFoodDining, day(2024, 1, 20), "c"),
	} {
		_, err := g.Insert(ctx, f)
		require.NoError(t, err)
	}

	s, err := g.Aggregate(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(6001), s.Total.TotalAmount.Cents)
	assert.Equal(t, int64(3), s.Total.TotalCount)
	assert.Equal(t, int64(2000), s.Total.AverageAmount.Cents)

	require.Len(t, s.Categories, 2)
	assert.Equal(t, core.CategoryFoodDining, s.Categories[0].Category)
	assert.Equal(t, int64(4000), s.Categories[0].TotalAmount.Cents)
	assert.Equal(t, int64(2), s.Categories[0].Count)
	assert.Equal(t, core.CategoryTravel, s.Categories[1].Category)

	require.Len(t, s.Monthly, 2)
	assert.Equal(t, core.MonthTotal{Year: 2024, Month: 1, TotalAmount: core.Money{Cents: 4000}, Count: 2}, s.Monthly[0])
	assert.Equal(t, core.MonthTotal{Year: 2024, Month: 3, TotalAmount: core.Money{Cents: 2001}, Count: 1}, s.Monthly[1])

	travel, err := g.Aggregate(ctx, core.Filter{Category: core.CategoryTravel})
	require.NoError(t, err)
	assert.Equal(t, int64(2001), travel.Total.TotalAmount.Cents)
	assert.Len(t, travel.Categories, 1)
}

// testFarDates covers dates outside the range of a nanosecond Unix timestamp.
func testFarDates(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	for _, f := range []core.Fields{
		fields(100, core.CategoryOther, day(2024, 3, 1), "present"),
		fields(200, core.CategoryOther, day(3000, 3, 1), "future"),
		fields(300, core.CategoryOther, day(1600, 6, 1), "past"),
	} {
		_, err := g.Insert(ctx, f)
		require.NoError(t, err)
	}

	list, err := g.List(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"future", "present", "past"}, notes(list))

	later, err := g.List(ctx, core.Filter{StartDate: day(2025, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"future"}, notes(later))

	earlier, err := g.List(ctx, core.Filter{EndDate: day(1700, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"past"}, notes(earlier))

	s, err := g.Aggregate(ctx, core.Filter{})
	require.NoError(t, err)
	require.Len(t, s.Monthly, 3)
	assert.Equal(t, core.MonthTotal{Year: 1600, Month: 6, TotalAmount: core.Money{Cents: 300}, Count: 1}, s.Monthly[0])
	assert.Equal(t, core.MonthTotal{Year: 2024, Month: 3, TotalAmount: core.Money{Cents: 100}, Count: 1}, s.Monthly[1])
	assert.Equal(t, core.MonthTotal{Year: 3000, Month: 3, TotalAmount: core.Money{Cents: 200}, Count: 1}, s.Monthly[2])
}

func notes(list []core.Expense) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.Note)
	}
	return out
}
