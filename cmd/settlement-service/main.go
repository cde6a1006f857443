// cmd/settlement-service/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"nexus-settlement/internal/pkg/bootstrap"
	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/mq"
	"nexus-settlement/internal/pkg/redis"
	"nexus-settlement/internal/service/order/application"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/domain/port"
	"nexus-settlement/internal/service/order/infrastructure"
	"nexus-settlement/internal/service/order/infrastructure/adapter"
	"nexus-settlement/internal/service/order/infrastructure/rule"
	"nexus-settlement/internal/service/order/interfaces"
	"nexus-settlement/internal/zookeeper"
)

// main is the composition root.
func main() {
	cfg := bootstrap.Init()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      cfg.Service.Name,
		Port:             cfg.Service.Port,
		RegisterHandlers: register,
	})
}

func register(appCtx bootstrap.AppCtx) []func(ctx context.Context) {
	cfg := appCtx.Config
	ctx := context.Background()
	tracer := otel.Tracer(cfg.Service.Name)
	var cleanups []func(ctx context.Context)

	defaults := func() domain.Settings { return settingsFromConfig(bootstrap.GetCurrentConfig()) }
	repos := buildRepositories(cfg, defaults)

	rules, err := rule.NewCELRuleEngine()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to build coupon rule engine")
	}

	var idem port.IdempotencyStore
	if len(cfg.Infra.Redis.Addrs) > 0 {
		redisClient, err := redis.NewClient(ctx, cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize redis client")
		}
		idem, err = adapter.NewIdempotencyRedisAdapter(ctx, redisClient, cfg.Infra.Redis.PendingTTL, cfg.Infra.Redis.IdempotencyTTL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize idempotency store")
		}
		repos.Coupons = adapter.NewCachedCouponRepository(repos.Coupons, redisClient, cfg.Infra.Redis.CouponCacheTTL)
		cleanups = append(cleanups, func(context.Context) { _ = redisClient.Close() })
	} else {
		logger.Logger.Warn().Msg("redis not configured; checkout submissions are deduplicated by the order table only")
	}

	var locker port.Locker = adapter.NewMemoryLocker()
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		locker = adapter.NewZKLocker(conn, cfg.Infra.Zookeeper.LockRoot)
		cleanups = append(cleanups, func(context.Context) { conn.Close() })
	}

	var notifier port.NotificationProducer = adapter.LogNotifier{}
	var scheduler port.CascadeScheduler = adapter.LogScheduler{}
	brokers := cfg.Infra.Kafka.Brokers
	if len(brokers) > 0 {
		notifications := adapter.NewNotificationKafkaAdapter(mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.NotificationTopic))
		cascades := adapter.NewSchedulerKafkaAdapter(mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.CascadeTopic), cfg.Settlement.Cascade.Delay)
		notifier, scheduler = notifications, cascades
		cleanups = append(cleanups, func(context.Context) {
			_ = notifications.Close()
			_ = cascades.Close()
		})
	}

	ledger := application.NewLoyaltyLedger(repos.Profiles, tracer, cfg.Settlement.LoyaltyAttempts)
	orders := application.NewOrderApplicationService(repos, cfg.Service.ProcessingTimeout, tracer, rules, ledger, notifier, idem)
	returns := application.NewReturnApplicationService(repos.Returns, repos.Orders, locker, notifier, scheduler, tracer, application.CascadePolicy{
		Attempts:     cfg.Settlement.Cascade.Attempts,
		Backoff:      cfg.Settlement.Cascade.Backoff,
		MaxScheduled: cfg.Settlement.Cascade.MaxScheduled,
	})

	interfaces.NewOrderHandler(orders, returns, ledger).RegisterRoutes(appCtx.Router)

	if len(brokers) > 0 {
		dltTopic := cfg.Infra.Kafka.CascadeTopic + ".dlt"
		dltWriter := mq.NewKafkaWriter(brokers, dltTopic)
		cascadeConsumer := infrastructure.NewKafkaConsumer("return-cascade",
			mq.NewKafkaReader(brokers, cfg.Infra.Kafka.CascadeTopic, cfg.Infra.Kafka.CascadeGroup),
			interfaces.NewCascadeHandler(returns).Handle, dltWriter)
		dltConsumer := infrastructure.NewKafkaConsumer("return-cascade-dlt",
			mq.NewKafkaReader(brokers, dltTopic, cfg.Infra.Kafka.CascadeGroup+"-dlt"),
			interfaces.LogDeadLetter, nil)
		cascadeConsumer.Start(ctx)
		dltConsumer.Start(ctx)
		// Consumers stop before the writers they feed are closed.
		cleanups = append([]func(context.Context){
			cascadeConsumer.Stop,
			dltConsumer.Stop,
			func(context.Context) { _ = dltWriter.Close() },
		}, cleanups...)
	}

	go reconcileOnStart(returns)
	return cleanups
}

// reconcileOnStart sets the drift gauge from the stored state.
func reconcileOnStart(returns *application.ReturnApplicationService) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := returns.Reconcile(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("initial reconciliation failed")
	}
}
