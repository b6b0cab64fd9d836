// Package app wires the domain services shared by the api and cron binaries.
package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/internal/catalog"
	"github.com/angelmondragon/marketplace-orders/internal/coupons"
	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/internal/pricing"
	"github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/internal/settlements"
	"github.com/angelmondragon/marketplace-orders/pkg/config"
	"github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
)

// Services holds every wired domain service plus the repositories the
// maintenance jobs purge directly.
type Services struct {
	Orders            orders.Service
	Returns           returns.Service
	Settlements       settlements.Service
	Notifications     notifications.Service
	Ledger            ledger.Service
	NotificationsRepo notifications.Repository
	OutboxRepo        *outbox.Repository
}

// Build wires the services over one database client. Order metrics register on reg.
func Build(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Services, error) {
	gdb := dbClient.DB()

	catalogReader, err := catalog.NewReader(catalog.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	couponValidator, err := coupons.NewValidator(coupons.NewRepository(gdb), nil)
	if err != nil {
		return nil, err
	}
	commission, err := decimal.NewFromString(cfg.Orders.DefaultCommissionPct)
	if err != nil {
		logg.Warn(context.Background(), "invalid default commission, using platform default")
		commission = pricing.DefaultCommissionPct
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(gdb))
	if err != nil {
		return nil, err
	}

	notificationsRepo := notifications.NewRepository(gdb)
	email, sms := notifications.ChannelsFromConfig(cfg.Sendgrid, cfg.Twilio)
	sender, err := notifications.NewSender(notifications.SenderParams{
		Repository: notificationsRepo,
		Email:      email,
		SMS:        sms,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(gdb)
	outboxService := outbox.NewService(outboxRepo, logg)
	orderMetrics := metrics.NewOrderMetrics(reg)
	ordersRepo := orders.NewRepository(gdb)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository:            ordersRepo,
		Tx:                    dbClient,
		Catalog:               catalogReader,
		Coupons:               couponValidator,
		Engine:                pricing.NewEngine(commission),
		Outbox:                outboxService,
		Notifier:              sender,
		Metrics:               orderMetrics,
		Logger:                logg,
		EstimatedDeliveryDays: cfg.Orders.EstimatedDeliveryDays,
		ArchiveAfterMonths:    cfg.Jobs.ArchiveAfterMonths,
		InvoiceBasePath:       cfg.Orders.InvoiceBasePath,
	})
	if err != nil {
		return nil, err
	}

	returnsService, err := returns.NewService(returns.ServiceParams{
		Repository:    returns.NewRepository(gdb),
		Orders:        ordersRepo,
		Tx:            dbClient,
		Sellers:       catalogReader,
		Ledger:        ledgerService,
		Outbox:        outboxService,
		Notifier:      sender,
		Metrics:       orderMetrics,
		Logger:        logg,
		PenaltyWindow: cfg.Jobs.PenaltyReviewWindow,
	})
	if err != nil {
		return nil, err
	}

	settlementsService, err := settlements.NewService(settlements.ServiceParams{
		Repository: settlements.NewRepository(gdb),
		Tx:         dbClient,
		Sellers:    catalogReader,
		Ledger:     ledgerService,
		Outbox:     outboxService,
		Notifier:   sender,
		Metrics:    orderMetrics,
		Logger:     logg,
		HoldPeriod: cfg.Jobs.SettlementAging,
	})
	if err != nil {
		return nil, err
	}

	return &Services{
		Orders:            ordersService,
		Returns:           returnsService,
		Settlements:       settlementsService,
		Notifications:     notificationsService,
		Ledger:            ledgerService,
		NotificationsRepo: notificationsRepo,
		OutboxRepo:        outboxRepo,
	}, nil
}
