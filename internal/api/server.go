// Package api exposes the issue commands over HTTP with gin.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/zulandar/docket/internal/blob"
	"github.com/zulandar/docket/internal/issue"
	"gorm.io/gorm"
)

// ActorHeader carries the id or email of the acting user. Authentication
// happens in front of this server.
const ActorHeader = "X-Actor"

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB      *gorm.DB
	Service *issue.Service
	Blobs   *blob.Store
	Logger  *slog.Logger
	Port    int
	// MaxUpload bounds multipart request bodies.
	MaxUpload int64
	// FeedInterval is the poll period of the event stream.
	FeedInterval time.Duration
	Out          io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil || opts.Service == nil {
		return fmt.Errorf("api: db and service are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine serving every route.
func NewRouter(opts StartOpts) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = issue.DefaultMaxFileSize
	}
	if opts.FeedInterval <= 0 {
		opts.FeedInterval = DefaultFeedInterval
	}
	// Field values keep their JSON number text so decimals are not rounded.
	binding.EnableDecoderUseNumber = true

	router := gin.New()
	router.Use(gin.Recovery())
	h := &handlers{
		db:           opts.DB,
		svc:          opts.Service,
		blobs:        opts.Blobs,
		log:          opts.Logger,
		maxUpload:    opts.MaxUpload,
		feedInterval: opts.FeedInterval,
	}
	registerRoutes(router, h)
	return router
}
