package handler

import (
	"net/http"
	"time"

	"custody/internal/svc"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/rest"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodPost,
				Path:    "/wallet_init",
				Handler: WalletInitHandler(serverCtx),
			},
			// --- Sweep Routes ---
			{
				Method:  http.MethodPost,
				Path:    "/sweep/user",
				Handler: SweepUserHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/sweep/all",
				Handler: SweepAllHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/health",
				Handler: HealthHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api/"),
		rest.WithTimeout(120000*time.Millisecond),
	)

	server.AddRoute(rest.Route{
		Method:  http.MethodGet,
		Path:    "/metrics",
		Handler: promhttp.Handler().ServeHTTP,
	})
}
