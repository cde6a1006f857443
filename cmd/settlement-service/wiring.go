package main

import (
	"time"

	"nexus-settlement/internal/pkg/bootstrap"
	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/application"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/infrastructure"
)

// settingsFromConfig converts the configured defaults into domain settings.
func settingsFromConfig(cfg *bootstrap.Config) domain.Settings {
	table := make(map[domain.Zone]map[domain.Method]int64, len(cfg.Settlement.Shipping))
	for zone, methods := range cfg.Settlement.Shipping {
		row := make(map[domain.Method]int64, len(methods))
		for method, fee := range methods {
			row[domain.Method(method)] = fee
		}
		table[domain.Zone(zone)] = row
	}
	return domain.Settings{
		Shipping: domain.ShippingRates{Table: table, FreeThreshold: cfg.Settlement.FreeThreshold},
		Loyalty: domain.LoyaltyRates{
			EarningRate:    cfg.Settlement.EarningRate,
			RedemptionRate: cfg.Settlement.RedemptionRate,
		},
	}
}

func buildRepositories(cfg *bootstrap.Config, defaults func() domain.Settings) application.Repositories {
	if cfg.Settlement.Store == "mysql" {
		m := cfg.Infra.MySQL
		db, err := infrastructure.OpenMySQL(infrastructure.MySQLOptions{
			Host: m.Host, Port: m.Port, User: m.User, Password: m.Password, Database: m.Database,
		}.DSN(), m.Migrate)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to open mysql")
		}
		store := infrastructure.NewGormStore(db)
		return application.Repositories{
			Orders:   store.Orders(),
			Returns:  store.Returns(),
			Profiles: store.Profiles(),
			Coupons:  store.Coupons(),
			Settings: infrastructure.NewGormSettingsRepository(db, defaults),
			Tx:       store,
		}
	}

	logger.Logger.Warn().Msg("using the in-memory store; data is lost on restart")
	store := infrastructure.NewMemoryStore()
	seedDemo(store)
	return application.Repositories{
		Orders:   store.Orders(),
		Returns:  store.Returns(),
		Profiles: store.Profiles(),
		Coupons:  store.Coupons(),
		Settings: infrastructure.StaticSettingsRepository{Settings: defaults},
		Tx:       store,
	}
}

// seedDemo gives the in-memory store a customer and coupons to check out with.
func seedDemo(store *infrastructure.MemoryStore) {
	store.SeedProfile(domain.Profile{ID: "demo-user", Email: "demo@example.com", Points: 500, Tier: domain.TierArgent})
	store.SeedCoupon(domain.Coupon{Code: "BIENVENUE10", DiscountPercent: 10, ExpiresAt: time.Now().AddDate(1, 0, 0)})
	store.SeedCoupon(domain.Coupon{Code: "GROS20", DiscountPercent: 20, ExpiresAt: time.Now().AddDate(1, 0, 0), Rule: "subtotal >= 20000"})
}
