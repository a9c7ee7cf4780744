package rest

import (
	"net/http"

	"github.com/hubwatch/reputeer/internal/cache"
	"github.com/hubwatch/reputeer/internal/database"
	"github.com/hubwatch/reputeer/internal/rest/handler"
	"github.com/hubwatch/reputeer/internal/scoring"
	"github.com/klauspost/compress/gzhttp"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Server implements the engine's HTTP surface: batch ingestion, the admin
// config surface and the read-only dashboard queries.
type Server struct {
	eventsHandler *handler.EventsHandler
	configHandler *handler.ConfigHandler
	queryHandler  *handler.QueryHandler
}

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	DB              database.Client
	Processor       *scoring.BatchProcessor
	Resolver        *scoring.WeightResolver
	Policies        *scoring.PolicyCache
	WeightBroadcast *cache.Broadcaster
	PolicyBroadcast *cache.Broadcaster
	Logger          *zap.Logger
}

// NewServer creates the HTTP handler for the engine.
func NewServer(deps Deps) http.Handler {
	server := &Server{
		eventsHandler: handler.NewEventsHandler(deps.Processor, deps.Logger),
		configHandler: handler.NewConfigHandler(
			deps.DB, deps.Resolver, deps.Policies,
			deps.WeightBroadcast, deps.PolicyBroadcast, deps.Logger),
		queryHandler: handler.NewQueryHandler(deps.DB, deps.Logger),
	}

	router := bunrouter.New()

	router.WithGroup("/v1", func(g *bunrouter.Group) {
		g.POST("/events", server.eventsHandler.ProcessBatch)

		g.GET("/communities/:id/policy", server.configHandler.GetPolicy)
		g.PUT("/communities/:id/policy", server.configHandler.PutPolicy)
		g.GET("/communities/:id/weights", server.configHandler.GetWeights)
		g.PUT("/communities/:id/weights", server.configHandler.PutWeights)
		g.PUT("/weights/default", server.configHandler.PutDefaultWeights)

		g.GET("/communities/:id/leaderboard", server.queryHandler.Leaderboard)
		g.GET("/communities/:id/at-risk", server.queryHandler.AtRisk)
		g.GET("/communities/:id/history", server.queryHandler.History)
	})

	return gzhttp.GzipHandler(router)
}
