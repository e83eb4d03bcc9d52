// Package mongo implements the expense gateway over a MongoDB collection.
//
// Amounts are written twice: as a float "amount" for compatibility with
// existing documents, and as integer "amountCents" which is authoritative
// when present.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

const CollectionName = "expenses"

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

var _ storage.Gateway = (*Store)(nil)

// Connect dials uri, verifies the primary is reachable, and ensures indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(database).Collection(CollectionName),
		now:    time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	slog.InfoContext(ctx, "MongoDB connected", "database", database, "collection", CollectionName)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("date_desc_created_desc"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}},
			Options: options.Index().SetName("category"),
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// document is the stored shape. AmountCents is absent on legacy records.
type document struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	Amount      float64       `bson:"amount"`
	AmountCents *int64        `bson:"amountCents,omitempty"`
	Date        time.Time     `bson:"date"`
	Category    string        `bson:"category"`
	Note        string        `bson:"note"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

func toDocument(e core.Expense) document {
	cents := e.Amount.Cents
	return document{
		Amount:      e.Amount.Float(),
		AmountCents: &cents,
		Date:        e.Date.UTC(),
		Category:    string(e.Category),
		Note:        e.Note,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
}

func (d document) expense() core.Expense {
	amount := core.NewMoneyFromFloat(d.Amount)
	if d.AmountCents != nil {
		amount = core.Money{Cents: *d.AmountCents}
	}
	return core.Expense{
		ID:        d.ID.Hex(),
		Amount:    amount,
		Date:      d.Date.UTC(),
		Category:  core.Category(d.Category),
		Note:      d.Note,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// filterDoc translates f into a query document.
func filterDoc(f core.Filter) bson.D {
	q := bson.D{}
	if f.Category != "" {
		q = append(q, bson.E{Key: "category", Value: string(f.Category)})
	}
	if f.StartDate != nil || f.EndDate != nil {
		rng := bson.D{}
		if f.StartDate != nil {
			rng = append(rng, bson.E{Key: "$gte", Value: f.StartDate.UTC()})
		}
		if f.EndDate != nil {
			rng = append(rng, bson.E{Key: "$lte", Value: f.EndDate.UTC()})
		}
		q = append(q, bson.E{Key: "date", Value: rng})
	}
	return q
}

// objectID maps ids that could not have been issued by this store to ErrNotFound.
func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, storage.ErrNotFound
	}
	return oid, nil
}

// msTime truncates to the millisecond precision BSON dates carry.
func msTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (s *Store) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cur, err := s.coll.Find(ctx, filterDoc(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find expenses: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.expense())
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Expense, error) {
	oid, err := objectID(id)
	if err != nil {
		return core.Expense{}, err
	}
	var d document
	err = s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("find expense %s: %w", id, err)
	}
	return d.expense(), nil
}

func (s *Store) Insert(ctx context.Context, f core.Fields) (core.Expense, error) {
	now := msTime(s.now())
	e := core.Expense{CreatedAt: now, UpdatedAt: now}
	e.Apply(f, now)
	e.Date = msTime(e.Date)

	d := toDocument(e)
	d.ID = bson.NewObjectID()
	if _, err := s.coll.InsertOne(ctx, d); err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	e.ID = d.ID.Hex()
	return e, nil
}

func (s *Store) Replace(ctx context.Context, id string, f core.Fields) (core.Expense, error) {
	oid, err := objectID(id)
	if err != nil {
		return core.Expense{}, err
	}

	var draft core.Expense
	draft.Apply(f, s.now())
	cents := draft.Amount.Cents
	set := bson.D{
		{Key: "amount", Value: draft.Amount.Float()},
		{Key: "amountCents", Value: cents},
		{Key: "category", Value: string(draft.Category)},
		{Key: "note", Value: draft.Note},
		{Key: "updatedAt", Value: msTime(s.now())},
	}
	if f.Date != nil && !f.Date.IsZero() {
		set = append(set, bson.E{Key: "date", Value: msTime(*f.Date)})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document
	err = s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	return d.expense(), nil
}

func (s *Store) Delete(ctx context.Context, id string) (core.Expense, error) {
	oid, err := objectID(id)
	if err != nil {
		return core.Expense{}, err
	}
	var d document
	err = s.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("delete expense %s: %w", id, err)
	}
	return d.expense(), nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("delete all expenses: %w", err)
	}
	return res.DeletedCount, nil
}

// centsExpr reads amountCents, falling back to the rounded float amount.
var centsExpr = bson.D{{Key: "$toLong", Value: bson.D{{Key: "$ifNull", Value: bson.A{
	"$amountCents",
	bson.D{{Key: "$round", Value: bson.A{
		bson.D{{Key: "$multiply", Value: bson.A{"$amount", 100}}}, 0,
	}}},
}}}}}

func groupStage(id any) bson.D {
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: id},
		{Key: "total", Value: bson.D{{Key: "$sum", Value: centsExpr}}},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
	}}}
}

type totalRow struct {
	Total int64 `bson:"total"`
	Count int64 `bson:"count"`
}

type categoryRow struct {
	Category string `bson:"_id"`
	Total    int64  `bson:"total"`
	Count    int64  `bson:"count"`
}

type monthRow struct {
	Key struct {
		Year  int `bson:"year"`
		Month int `bson:"month"`
	} `bson:"_id"`
	Total int64 `bson:"total"`
	Count int64 `bson:"count"`
}

// Aggregate runs the overall, per-category and per-month pipelines concurrently.
func (s *Store) Aggregate(ctx context.Context, f core.Filter) (core.Stats, error) {
	match := bson.D{{Key: "$match", Value: filterDoc(f)}}

	var (
		totals []totalRow
		cats   []categoryRow
		months []monthRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.aggregate(gctx, mongo.Pipeline{match, groupStage(nil)}, &totals)
	})
	g.Go(func() error {
		return s.aggregate(gctx, mongo.Pipeline{match, groupStage("$category")}, &cats)
	})
	g.Go(func() error {
		monthKey := bson.D{
			{Key: "year", Value: bson.D{{Key: "$year", Value: "$date"}}},
			{Key: "month", Value: bson.D{{Key: "$month", Value: "$date"}}},
		}
		return s.aggregate(gctx, mongo.Pipeline{match, groupStage(monthKey)}, &months)
	})
	if err := g.Wait(); err != nil {
		return core.Stats{}, err
	}

	var stats core.Stats
	if len(totals) > 0 {
		t := totals[0]
		stats.Total = core.Totals{
			TotalAmount:   core.Money{Cents: t.Total},
			TotalCount:    t.Count,
			AverageAmount: core.Money{Cents: core.AverageCents(t.Total, t.Count)},
		}
	}
	for _, c := range cats {
		stats.Categories = append(stats.Categories, core.CategoryTotal{
			Category:    core.Category(c.Category),
			TotalAmount: core.Money{Cents: c.Total},
			Count:       c.Count,
		})
	}
	for _, m := range months {
		stats.Monthly = append(stats.Monthly, core.MonthTotal{
			Year:        m.Key.Year,
			Month:       m.Key.Month,
			TotalAmount: core.Money{Cents: m.Total},
			Count:       m.Count,
		})
	}
	stats.Sort()
	return stats, nil
}

func (s *Store) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate expenses: %w", err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode aggregation: %w", err)
	}
	return nil
}
