package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

func (s *service) Get(ctx context.Context, actor types.Actor, orderID uuid.UUID, sellerItemsOnly bool) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.actorContext(ctx, actor, orderID)
	sellerID, err := s.sellerScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	switch actor.Role {
	case enums.ActorRoleAdmin:
		return order, nil
	case enums.ActorRoleUser:
		if order.UserID != actor.UserID {
			return nil, s.viewDenied(ctx, "order belongs to another user")
		}
		if order.IsDeleted {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return order, nil
	case enums.ActorRoleSeller:
		if !order.HasSeller(sellerID) {
			return nil, s.viewDenied(ctx, "order has no items from this seller")
		}
		if sellerItemsOnly {
			order.Items = itemsOfSeller(order.Items, sellerID)
		}
		return order, nil
	}
	return nil, s.viewDenied(ctx, "role cannot view orders")
}

// List is role scoped: users see their own orders, sellers see orders with at
// least one of their items, admins see everything including archived orders.
func (s *service) List(ctx context.Context, actor types.Actor, params ListParams) (*OrderList, error) {
	sellerID, err := s.sellerScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	from, to, err := timeRange(s.now(), params.StartDate, params.EndDate, params.Duration, listSince)
	if err != nil {
		return nil, err
	}
	query := listQuery{
		From:  from,
		To:    to,
		Limit: params.Limit,
	}
	if params.Status != nil {
		if !params.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
		}
		query.Status = params.Status
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	switch actor.Role {
	case enums.ActorRoleUser:
		userID := actor.UserID
		query.UserID = &userID
	case enums.ActorRoleSeller:
		query.SellerID = &sellerID
	case enums.ActorRoleAdmin:
		query.IncludeDeleted = true
	default:
		return nil, s.viewDenied(ctx, "role cannot list orders")
	}

	rows, err := s.repo.ListOrders(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	if actor.IsSeller() && params.SellerItemsOnly {
		for i := range page.Items {
			page.Items[i].Items = itemsOfSeller(page.Items[i].Items, sellerID)
		}
	}
	if page.Items == nil {
		page.Items = []models.Order{}
	}
	return &OrderList{Orders: page.Items, NextCursor: page.NextCursor}, nil
}

// GenerateInvoice records INV-<orderNumber> on the order. Calling it again
// returns the invoice already on file.
func (s *service) GenerateInvoice(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*Invoice, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.actorContext(ctx, actor, orderID)

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.IsAdmin() && !(actor.IsUser() && order.UserID == actor.UserID) {
		return nil, s.viewDenied(ctx, "only the buyer or an admin may generate an invoice")
	}
	if existing := invoiceOf(order); existing != nil {
		return existing, nil
	}

	number := "INV-" + order.OrderNumber
	url := fmt.Sprintf("%s/%s.pdf", s.invoiceBasePath, number)
	now := s.now()
	created, err := s.repo.SetInvoice(ctx, order.ID, number, url, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record invoice")
	}
	if !created {
		reloaded, err := s.repo.FindOrder(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if existing := invoiceOf(reloaded); existing != nil {
			return existing, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice could not be recorded")
	}
	return &Invoice{Number: number, URL: url, GeneratedAt: now}, nil
}

// Stats aggregates orders for admins and sellers over a window that defaults
// to the last 30 days.
func (s *service) Stats(ctx context.Context, actor types.Actor, params StatsParams) (*Stats, error) {
	if !actor.IsAdmin() && !actor.IsSeller() {
		return nil, s.viewDenied(ctx, "only admins and sellers may view order statistics")
	}
	sellerID, err := s.sellerScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	duration := params.Duration
	if duration == "" {
		duration = StatsDurationMonth
	}
	from, to, err := timeRange(s.now(), params.StartDate, params.EndDate, duration, statsSince)
	if err != nil {
		return nil, err
	}

	query := statsQuery{To: to}
	if from != nil {
		query.From = *from
	}
	if actor.IsSeller() {
		query.SellerID = &sellerID
	}
	rows, err := s.repo.StatsRows(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order stats")
	}
	return aggregateStats(rows), nil
}

func (s *service) ArchiveTerminal(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, -s.archiveAfterMonths, 0)
	archived, err := s.repo.ArchiveBefore(ctx, cutoff, enums.ArchivableOrderStatuses())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive orders")
	}
	return archived, nil
}

type orderAggregate struct {
	status    enums.OrderStatus
	amount    decimal.Decimal
	createdAt time.Time
}

func aggregateStats(rows []statsRow) *Stats {
	orders := map[uuid.UUID]*orderAggregate{}
	var sequence []uuid.UUID
	for _, row := range rows {
		agg, ok := orders[row.OrderID]
		if !ok {
			agg = &orderAggregate{status: row.Status, amount: decimal.Zero, createdAt: row.CreatedAt}
			orders[row.OrderID] = agg
			sequence = append(sequence, row.OrderID)
		}
		if row.ItemStatus != nil && *row.ItemStatus == enums.OrderStatusCancelled {
			continue
		}
		agg.amount = agg.amount.Add(row.Amount)
	}

	byStatus := map[enums.OrderStatus]*StatusCount{}
	daily := map[string]*DailyCount{}
	revenue := RevenueStats{TotalRevenue: decimal.Zero, AverageOrderValue: decimal.Zero}
	for _, id := range sequence {
		agg := orders[id]
		sc, ok := byStatus[agg.status]
		if !ok {
			sc = &StatusCount{Status: agg.status, Total: decimal.Zero}
			byStatus[agg.status] = sc
		}
		sc.Count++
		sc.Total = sc.Total.Add(agg.amount)

		day := agg.createdAt.UTC().Format("2006-01-02")
		dc, ok := daily[day]
		if !ok {
			dc = &DailyCount{Date: day, Revenue: decimal.Zero}
			daily[day] = dc
		}
		dc.Count++
		dc.Revenue = dc.Revenue.Add(agg.amount)

		if agg.status != enums.OrderStatusCancelled {
			revenue.TotalOrders++
			revenue.TotalRevenue = revenue.TotalRevenue.Add(agg.amount)
		}
	}
	if revenue.TotalOrders > 0 {
		revenue.AverageOrderValue = revenue.TotalRevenue.
			Div(decimal.NewFromInt(int64(revenue.TotalOrders))).
			Round(2)
	}

	stats := &Stats{
		ByStatus: make([]StatusCount, 0, len(byStatus)),
		Revenue:  revenue,
		Daily:    make([]DailyCount, 0, len(daily)),
	}
	for _, status := range enums.OrderStatuses() {
		if sc, ok := byStatus[status]; ok {
			stats.ByStatus = append(stats.ByStatus, *sc)
		}
	}
	for _, dc := range daily {
		stats.Daily = append(stats.Daily, *dc)
	}
	sort.Slice(stats.Daily, func(i, j int) bool { return stats.Daily[i].Date < stats.Daily[j].Date })
	return stats
}

func invoiceOf(order *models.Order) *Invoice {
	if order.InvoiceNumber == nil {
		return nil
	}
	inv := &Invoice{Number: *order.InvoiceNumber}
	if order.InvoiceURL != nil {
		inv.URL = *order.InvoiceURL
	}
	if order.InvoiceGeneratedAt != nil {
		inv.GeneratedAt = *order.InvoiceGeneratedAt
	}
	return inv
}

func itemsOfSeller(items []models.OrderItem, sellerID uuid.UUID) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		if item.SellerID == sellerID {
			out = append(out, item)
		}
	}
	return out
}

func (s *service) viewDenied(ctx context.Context, reason string) error {
	s.logg.AccessDenied(ctx, reason)
	return pkgerrors.New(pkgerrors.CodeForbidden, "you do not have permission to access this order").
		WithDetails(map[string]any{"reason": reason})
}

// timeRange resolves explicit dates or a duration shortcut. Explicit dates win;
// an empty duration leaves the range unbounded.
func timeRange(now time.Time, start, end *time.Time, duration string, since func(time.Time, string) time.Time) (*time.Time, *time.Time, error) {
	if start != nil || end != nil {
		if start != nil && end != nil && end.Before(*start) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "endDate must not be before startDate")
		}
		return start, end, nil
	}
	if duration == "" {
		return nil, nil, nil
	}
	from := since(now, duration)
	return &from, nil, nil
}

func listSince(now time.Time, duration string) time.Time {
	switch duration {
	case ListDurationThreeMonths:
		return now.AddDate(0, -3, 0)
	case ListDurationYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

func statsSince(now time.Time, duration string) time.Time {
	switch duration {
	case StatsDurationWeek:
		return now.AddDate(0, 0, -7)
	case StatsDurationQuarter:
		return now.AddDate(0, 0, -90)
	case StatsDurationYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, 0, -30)
	}
}
