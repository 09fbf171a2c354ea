package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabbridge/tabbridge/internal/backend"
	"github.com/tabbridge/tabbridge/internal/cache"
	"github.com/tabbridge/tabbridge/internal/common/config"
	"github.com/tabbridge/tabbridge/internal/router"
	"github.com/tabbridge/tabbridge/internal/tabstore"
	"github.com/tabbridge/tabbridge/pkg/logger"
	"github.com/tabbridge/tabbridge/pkg/metrics"
	"github.com/tabbridge/tabbridge/pkg/version"
)

var configPath string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tabbridge",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tabbridge version %s\n", version.Get())
	},
}

var rootCmd = &cobra.Command{
	Use:   "tabbridge",
	Short: "Per-tab conversation relay",
	Long:  `tabbridge relays questions from per-tab UI surfaces to a remote conversational backend and streams incremental answers back`,
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "tabbridge.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting tabbridge",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	store, err := cache.NewStore(log, &cfg.Cache)
	if err != nil {
		log.Fatal("failed to initialize cache store", zap.Error(err))
	}

	client := backend.NewClient(log, &cfg.Backend, store)
	tabs := tabstore.NewStore(log)
	m := metrics.New(cfg.Metrics)

	r := router.NewRouter(log, tabs, client, m)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), m.Middleware())
	r.RegisterRoutes(engine)
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		log.Info("listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("failed to shut down server", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
