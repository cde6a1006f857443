// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/nacos"
	"nexus-settlement/internal/pkg/tracing"
	"nexus-settlement/internal/pkg/utils"
)

type AppCtx struct {
	Router chi.Router
	Nacos  *nacos.Client // nil when Nacos is not configured
	Config *Config
}

// AppInfo is what a service supplies to StartService.
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers mounts the service's routes and starts its background
	// workers. It returns the cleanups to run on shutdown, in order.
	RegisterHandlers func(appCtx AppCtx) []func(ctx context.Context)
}

// StartService runs the common start sequence and blocks until SIGINT/SIGTERM,
// then shuts down in reverse order.
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = utils.GetOutboundIP()
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer, requestLogger)
	var cleanups []func(ctx context.Context)
	if info.RegisterHandlers != nil {
		cleanups = info.RegisterHandlers(AppCtx{Router: router, Nacos: namingClient, Config: cfg})
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           otelhttp.NewHandler(router, info.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Logger.Info().Int("port", info.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err).Str("addr", server.Addr).Msg("could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info().Msgf("shutting down service %s", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Error().Err(err).Msg("error deregistering from nacos")
		}
		namingClient.Close()
	}
	if nacosConfigClient != nil {
		nacosConfigClient.Close()
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down http server")
	}
	for _, cleanup := range cleanups {
		cleanup(ctx)
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
	}

	logger.Logger.Info().Msgf("service %s gracefully shut down", info.ServiceName)
}

// requestLogger puts a request-scoped logger in the context and logs each request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logger.Logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ctx := logger.WithContext(r.Context(), l)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
