// cmd/checkout-demo/main.go
package main

import (
	"context"
	"flag"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"nexus-settlement/internal/checkout"
	"nexus-settlement/internal/pkg/httpclient"
	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/tracing"
	"nexus-settlement/internal/service/order/domain"
)

const serviceName = "checkout-demo"

// main walks one cart through every checkout step against a running
// settlement-service.
func main() {
	baseURL := flag.String("api", "http://localhost:8080", "settlement API base URL")
	userID := flag.String("user", "demo-user", "customer id, empty for a guest checkout")
	coupon := flag.String("coupon", "", "coupon code")
	points := flag.Int64("points", 0, "loyalty points to redeem")
	jaeger := flag.String("jaeger", "", "Jaeger collector endpoint")
	flag.Parse()

	logger.Init(serviceName, "debug", true)
	tp, err := tracing.InitTracerProvider(serviceName, *jaeger)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx, span := otel.Tracer(serviceName).Start(ctx, "checkout-demo")
	defer span.End()

	placer := checkout.NewHTTPOrderPlacer(httpclient.NewClient(otel.Tracer(serviceName), "settlement-api"), *baseURL)
	settings, err := placer.Settings(ctx)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load settings")
	}

	cart, err := domain.NewCart(
		domain.CartLine{ProductID: "robe-lin", Name: "Robe en lin", Size: "M", UnitPrice: 15000, Quantity: 2},
		domain.CartLine{ProductID: "foulard", Name: "Foulard soie", UnitPrice: 7500, Quantity: 1},
	)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("invalid demo cart")
	}

	m := checkout.NewMachine(cart, *userID, placer)
	m.UseSettings(settings)
	m.ApplyCoupon(*coupon)
	if *points > 0 {
		m.SetRedemption(domain.Redemption{Enabled: true, Points: *points})
	}

	// An incomplete contact form is rejected field by field.
	m.SetContact(domain.Address{Email: "client@example.com"})
	if err := m.Advance(ctx); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			logger.Logger.Info().Interface("fields", verr.Fields).Msg("contact step rejected")
		}
	}

	m.SetContact(domain.Address{
		Email: "client@example.com", FirstName: "Awa", LastName: "Diallo",
		Address: "12 rue des Lilas", City: "Dakar", Phone: "+221770000000",
	})
	m.SelectShipping(domain.ShippingSelection{Zone: domain.ZoneLocal, Method: domain.MethodExpress})
	m.SelectPayment("cash_on_delivery")

	for m.Step() != checkout.StepConfirmed {
		step := m.Step()
		if err := m.Advance(ctx); err != nil {
			logger.Logger.Fatal().Err(err).Str("step", string(step)).Msg("checkout failed")
		}
		if m.Step() == checkout.StepPayment {
			if b, err := m.Quote(); err == nil {
				logger.Logger.Info().Int64("grand_total", b.GrandTotal).Int64("shipping", b.ShippingCost).Msg("display quote")
			}
		}
	}

	placed := m.Placed()
	logger.Logger.Info().
		Str("order", placed.OrderID).
		Str("status", string(placed.Status)).
		Int64("total", placed.Breakdown.GrandTotal).
		Int64("points_earned", placed.Breakdown.PointsEarned).
		Bool("replayed", placed.Replayed).
		Msg("order confirmed")
}
