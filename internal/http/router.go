// HTTP route registration.
package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"beam/internal/dispatch"
	"beam/internal/http/handlers"
	"beam/internal/http/middleware"
	"beam/internal/maps"
	"beam/internal/modules/beaming"
	"beam/internal/modules/job"
	"beam/internal/modules/location"
	"beam/internal/modules/pricing"
	"beam/internal/modules/wallet"
)

type RouterDeps struct {
	BaseCtx   context.Context
	Jobs      *job.Service
	Search    *beaming.Service
	Wallet    *wallet.Service
	Pricing   *pricing.Service
	Location  *location.Service
	Estimator *maps.Estimator
	Registry  *dispatch.WSRegistry
	Verifier  middleware.TokenVerifier
	Log       zerolog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	jobH := handlers.NewJobHandler(deps.BaseCtx, deps.Jobs, deps.Search)
	api.POST("/jobs", jobH.Create)
	api.GET("/jobs/:id", jobH.Get)
	api.POST("/jobs/:id/cancel", jobH.Cancel)
	api.POST("/jobs/:id/start", jobH.Start)
	api.POST("/jobs/:id/complete", jobH.Complete)
	api.GET("/jobs/:id/events", jobH.Events)

	propH := handlers.NewProposalHandler(deps.Jobs, deps.Search)
	api.POST("/jobs/:id/proposals", propH.Submit)
	api.GET("/jobs/:id/proposals", propH.List)
	api.POST("/jobs/:id/proposals/accept", propH.Accept)
	api.POST("/jobs/:id/negotiation", propH.Negotiate)
	api.POST("/jobs/:id/negotiation/accept", propH.AcceptNegotiation)
	api.POST("/jobs/:id/negotiation/reject", propH.RejectNegotiation)

	walletH := handlers.NewWalletHandler(deps.Wallet)
	api.POST("/wallets/:id", walletH.Provision)
	api.GET("/wallets/:id", walletH.Balance)
	api.GET("/wallets/:id/transactions", walletH.History)
	api.POST("/wallets/:id/load", walletH.Load)
	api.POST("/wallets/:id/adjust", walletH.Adjust)

	pricingH := handlers.NewPricingHandler(deps.Pricing, deps.Estimator)
	api.POST("/quotes", pricingH.Quote)

	courierH := handlers.NewCourierHandler(deps.Location, deps.Registry)
	api.PUT("/couriers/:id/location", courierH.UpdateLocation)
	api.POST("/couriers/:id/availability", courierH.SetAvailability)
	api.GET("/couriers/:id/locations", courierH.RecentLocations)
	api.GET("/couriers/:id/ws", courierH.Connect)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	return r
}
