package services

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// Publisher receives an event after every successful write.
type Publisher interface {
	PublishEvent(ctx context.Context, event *amqp.ExpenseEvent) error
}

// ExpenseService validates input, persists through the gateway and announces
// changes on the publisher. Publishing is best effort.
type ExpenseService struct {
	store     storage.Gateway
	publisher Publisher
	stats     *cache.StatsCache
	logger    *log.StructuredLogger
}

type Option func(*ExpenseService)

// WithPublisher enables change events. A nil publisher disables them.
func WithPublisher(p Publisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithStatsCache memoizes Stats per filter until the next write.
func WithStatsCache(c *cache.StatsCache) Option {
	return func(s *ExpenseService) { s.stats = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) { s.logger = log.NewStructuredLogger(l.WithComponent(log.ComponentExpense)) }
}

func NewExpenseService(store storage.Gateway, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		store:  store,
		logger: log.NewStructuredLogger(log.Discard()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ExpenseService) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return list, nil
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.Expense, error) {
	return s.store.Get(ctx, id)
}

// Create validates f and stores it. A *core.ValidationError is returned unwrapped.
func (s *ExpenseService) Create(ctx context.Context, f core.Fields) (core.Expense, error) {
	if err := f.Validate(); err != nil {
		return core.Expense{}, err
	}

	e, err := s.store.Insert(ctx, f.Normalized())
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.changed(ctx, log.OpCreate, e)
	s.publish(ctx, amqp.NewExpenseEvent(amqp.EventCreated, e))
	return e, nil
}

// Update replaces the editable fields of id. Validation runs before the lookup,
// so an invalid body on an unknown id reports the validation error.
func (s *ExpenseService) Update(ctx context.Context, id string, f core.Fields) (core.Expense, error) {
	if err := f.Validate(); err != nil {
		return core.Expense{}, err
	}

	e, err := s.store.Replace(ctx, id, f.Normalized())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Expense{}, err
		}
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	s.changed(ctx, log.OpUpdate, e)
	s.publish(ctx, amqp.NewExpenseEvent(amqp.EventUpdated, e))
	return e, nil
}

func (s *ExpenseService) Delete(ctx context.Context, id string) (core.Expense, error) {
	e, err := s.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Expense{}, err
		}
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}

	s.changed(ctx, log.OpDelete, e)
	s.publish(ctx, amqp.NewExpenseEvent(amqp.EventDeleted, e))
	return e, nil
}

// DeleteAll removes every record. There is no confirmation at this layer.
func (s *ExpenseService) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all expenses: %w", err)
	}

	s.invalidate()
	s.logger.LogExpenseChange(ctx, log.OpDeleteAll, "", 0, "", "")
	s.publish(ctx, amqp.NewClearedEvent(n))
	return n, nil
}

// Stats aggregates f. A cached result is only kept when no write happened
// while it was being computed.
func (s *ExpenseService) Stats(ctx context.Context, f core.Filter) (core.Stats, error) {
	var gen uint64
	if s.stats != nil {
		st, g, ok := s.stats.Lookup(f)
		if ok {
			return st, nil
		}
		gen = g
	}

	st, err := s.store.Aggregate(ctx, f)
	if err != nil {
		return core.Stats{}, fmt.Errorf("aggregate expenses: %w", err)
	}
	if s.stats != nil {
		s.stats.Store(f, st, gen)
	}
	return st, nil
}

func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ExpenseService) changed(ctx context.Context, op string, e core.Expense) {
	s.invalidate()
	s.logger.LogExpenseChange(ctx, op, e.ID, e.Amount.Cents, string(e.Category), core.FormatDate(e.Date))
}

func (s *ExpenseService) invalidate() {
	if s.stats != nil {
		s.stats.Invalidate()
	}
}

func (s *ExpenseService) publish(ctx context.Context, event *amqp.ExpenseEvent) {
	if s.publisher == nil {
		s.logger.Logger().DebugContext(ctx, "AMQP client not available, skipping event", log.FieldEventType, event.Type)
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		fields := log.NewFields()
		fields[log.FieldEventType] = string(event.Type)
		if event.ID != "" {
			fields[log.FieldExpenseID] = event.ID
		}
		s.logger.LogError(ctx, "Failed to publish expense event", err, log.ErrorTypeNetwork, log.OpPublish, fields)
	}
}
