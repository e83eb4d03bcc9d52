package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/storagetest"
)

func TestFilterDoc(t *testing.T) {
	assert.Empty(t, filterDoc(core.Filter{}))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	got := filterDoc(core.Filter{Category: core.CategoryTravel, StartDate: &start, EndDate: &end})

	want := bson.D{
		{Key: "category", Value: "Travel"},
		{Key: "date", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lte", Value: end}}},
	}
	assert.Equal(t, want, got)
}

func TestDocumentRoundTrip(t *testing.T) {
	e := core.Expense{
		Amount:    core.Money{Cents: 4250},
		Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Category:  core.CategoryFoodDining,
		Note:      "Lunch",
		CreatedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	d := toDocument(e)
	assert.Equal(t, 42.5, d.Amount)
	require.NotNil(t, d.AmountCents)
	assert.Equal(t, int64(4250), *d.AmountCents)

	d.ID = bson.NewObjectID()
	back := d.expense()
	assert.Equal(t, d.ID.Hex(), back.ID)
	assert.Equal(t, e.Amount, back.Amount)
	assert.Equal(t, e.Category, back.Category)
}

func TestLegacyDocumentUsesFloatAmount(t *testing.T) {
	d := document{ID: bson.NewObjectID(), Amount: 19.99, Category: "Other"}
	assert.Equal(t, int64(1999), d.expense().Amount.Cents)
}

func TestObjectIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "abc", "not-a-hex-object-id-at-all"} {
		_, err := objectID(id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	_, err := objectID(bson.NewObjectID().Hex())
	assert.NoError(t, err)
}

// TestGatewaySuite needs a reachable server, e.g.
// MONGODB_TEST_URI=mongodb://localhost:27017 go test ./internal/storage/mongo/
func TestGatewaySuite(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	n := 0
	storagetest.Run(t, func(t *testing.T) storage.Gateway {
		n++
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db := fmt.Sprintf("expense_tracker_test_%d_%d", time.Now().UnixNano(), n)
		s, err := Connect(ctx, uri, db)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.client.Database(db).Drop(context.Background())
			s.Close()
		})
		return s
	})
}
