package console

import (
	"context"
	"strconv"
	"time"

	"github.com/liimonx/isp-console/internal/core/domain"
	"github.com/liimonx/isp-console/internal/data/cache"
	"github.com/liimonx/isp-console/internal/data/mutation"
	"github.com/liimonx/isp-console/internal/data/query"
)

// Cache windows per resource, by expected change frequency. Plan
// catalogs are reference data; router state is live monitoring data.
var (
	plansCache         = cache.Options{StaleAfter: 10 * time.Minute, EvictAfter: time.Hour}
	customersCache     = cache.Options{StaleAfter: time.Minute, EvictAfter: 15 * time.Minute}
	subscriptionsCache = cache.Options{StaleAfter: time.Minute, EvictAfter: 15 * time.Minute}
	invoicesCache      = cache.Options{StaleAfter: 30 * time.Second, EvictAfter: 5 * time.Minute}
	routersCache       = cache.Options{StaleAfter: 5 * time.Second, EvictAfter: 30 * time.Second}
)

// Plans lists the plan catalog.
func (c *Console) Plans(ctx context.Context) *query.Query {
	cfg := query.NewConfig("plans")
	cfg.Cache = plansCache
	return c.queries.Run(ctx, cfg, func(ctx context.Context) (any, error) {
		var out []domain.Plan
		err := c.transport.Get(ctx, "/api/plans", &out)
		return out, err
	})
}

// Customers lists customer accounts.
func (c *Console) Customers(ctx context.Context) *query.Query {
	cfg := query.NewConfig("customers")
	cfg.Cache = customersCache
	return c.queries.Run(ctx, cfg, func(ctx context.Context) (any, error) {
		var out []domain.Customer
		err := c.transport.Get(ctx, "/api/customers", &out)
		return out, err
	})
}

// Customer fetches a single account. A zero id disables the query
// before any transport call.
func (c *Console) Customer(ctx context.Context, id int64) *query.Query {
	sid := strconv.FormatInt(id, 10)
	cfg := query.NewConfig(cache.ChildKey("customers", sid))
	cfg.Cache = customersCache
	cfg.Requires = []string{sid}
	return c.queries.Run(ctx, cfg, func(ctx context.Context) (any, error) {
		var out domain.Customer
		err := c.transport.Get(ctx, "/api/customers/"+sid, &out)
		return out, err
	})
}

// Subscriptions lists a customer's subscriptions.
func (c *Console) Subscriptions(ctx context.Context, customerID int64) *query.Query {
	sid := strconv.FormatInt(customerID, 10)
	cfg := query.NewConfig(cache.Key("subscriptions", map[string]string{"customer": sid}))
	cfg.Cache = subscriptionsCache
	cfg.Requires = []string{sid}
	return c.queries.Run(ctx, cfg, func(ctx context.Context) (any, error) {
		var out []domain.Subscription
		err := c.transport.Get(ctx, "/api/customers/"+sid+"/subscriptions", &out)
		return out, err
	})
}

// Invoices lists a customer's invoices.
func (c *Console) Invoices(ctx context.Context, customerID int64) *query.Query {
	sid := strconv.FormatInt(customerID, 10)
	cfg := query.NewConfig(cache.Key("invoices", map[string]string{"customer": sid}))
	cfg.Cache = invoicesCache
	cfg.Requires = []string{sid}
	return c.queries.Run(ctx, cfg, func(ctx context.Context) (any, error) {
		var out []domain.Invoice
		err := c.transport.Get(ctx, "/api/customers/"+sid+"/invoices", &out)
		return out, err
	})
}

// Routers lists the router fleet with live status.
func (c *Console) Routers(ctx context.Context) *query.Query {
	cfg := query.NewConfig("routers")
	cfg.Cache = routersCache
	return c.queries.Run(ctx, cfg, func(ctx context.Context) (any, error) {
		var out []domain.Router
		err := c.transport.Get(ctx, "/api/routers", &out)
		return out, err
	})
}

// NewCustomer is the input for CreateCustomer.
type NewCustomer struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	PlanID int64  `json:"plan_id"`
}

// CreateCustomer creates an account. On success every cached customer
// read is evicted.
func (c *Console) CreateCustomer() *mutation.Mutation {
	return c.mutations.New(mutation.Config{
		Invalidates: []string{"customers"},
	}, func(ctx context.Context, vars any) (any, error) {
		var out domain.Customer
		err := c.transport.Post(ctx, "/api/customers", vars, &out)
		return out, err
	})
}

// PaymentInput is the input for RecordPayment.
type PaymentInput struct {
	InvoiceID   int64  `json:"invoice_id"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
}

// RecordPayment settles an invoice. Invoice and payment reads depend
// on the result, so both are evicted.
func (c *Console) RecordPayment() *mutation.Mutation {
	return c.mutations.New(mutation.Config{
		Invalidates: []string{"invoices", "payments"},
	}, func(ctx context.Context, vars any) (any, error) {
		var out domain.Payment
		err := c.transport.Post(ctx, "/api/payments", vars, &out)
		return out, err
	})
}

// PlanChange is the input for ChangePlan.
type PlanChange struct {
	SubscriptionID int64 `json:"subscription_id"`
	PlanID         int64 `json:"plan_id"`
}

// ChangePlan moves a subscription to another plan.
func (c *Console) ChangePlan() *mutation.Mutation {
	return c.mutations.New(mutation.Config{
		Invalidates: []string{"subscriptions", "customers"},
	}, func(ctx context.Context, vars any) (any, error) {
		var out domain.Subscription
		err := c.transport.Post(ctx, "/api/subscriptions/change-plan", vars, &out)
		return out, err
	})
}

// RebootRouter asks a fleet router to restart. Router state reads are
// evicted so the fleet view picks up the transition.
func (c *Console) RebootRouter(id int64) *mutation.Mutation {
	sid := strconv.FormatInt(id, 10)
	return c.mutations.New(mutation.Config{
		Invalidates: []string{"routers"},
	}, func(ctx context.Context, vars any) (any, error) {
		err := c.transport.Post(ctx, "/api/routers/"+sid+"/reboot", vars, nil)
		return nil, err
	})
}
