package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ptarjan/nerdiversary-sub000/internal/config"
	"github.com/ptarjan/nerdiversary-sub000/internal/database"
	"github.com/ptarjan/nerdiversary-sub000/internal/logging"
	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
	"github.com/ptarjan/nerdiversary-sub000/internal/scheduler"
	"github.com/ptarjan/nerdiversary-sub000/internal/server"
	"github.com/ptarjan/nerdiversary-sub000/internal/subscribers"
	"github.com/ptarjan/nerdiversary-sub000/internal/webpush"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "nerdiversary-api",
		Short: "Nerdiversary milestone notification service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newGenerateKeysCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("vapid-contact", defaults.GetString("vapid.contact"), "VAPID contact URI (mailto: or https:)")
	cmd.PersistentFlags().String("tick-spec", defaults.GetString("scheduler.tick_spec"), "Cron spec driving the notification tick")
	cmd.PersistentFlags().String("lead-minutes", defaults.GetString("scheduler.lead_minutes"), "Comma-separated lead times in minutes")
	cmd.PersistentFlags().Int("batch-size", defaults.GetInt("scheduler.batch_size"), "Max birth instants per store query")
	cmd.PersistentFlags().Int("horizon-years", defaults.GetInt("milestones.horizon_years"), "Milestone generation horizon in years")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "vapid.contact", "vapid-contact")
	bindFlag(cmd, "scheduler.tick_spec", "tick-spec")
	bindFlag(cmd, "scheduler.lead_minutes", "lead-minutes")
	bindFlag(cmd, "scheduler.batch_size", "batch-size")
	bindFlag(cmd, "milestones.horizon_years", "horizon-years")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newGenerateKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-vapid-keys",
		Short: "Generate a fresh VAPID key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "NERDIVERSARY_VAPID_PRIVATE_KEY=%s\nNERDIVERSARY_VAPID_PUBLIC_KEY=%s\n", privateKey, publicKey)
			return nil
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := subscribers.NewService(subscribers.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	signer, err := webpush.NewVAPIDSigner(webpush.VAPIDConfig{
		PrivateKey: appConfig.VAPIDPrivateKey,
		PublicKey:  appConfig.VAPIDPublicKey,
		Contact:    appConfig.VAPIDContact,
	})
	if err != nil {
		return err
	}

	pusher, err := webpush.NewClient(webpush.ClientConfig{
		Signer:     signer,
		MessageTTL: appConfig.PushTTL,
	})
	if err != nil {
		return err
	}

	offsets, err := milestones.BuildOffsetTable(appConfig.HorizonYears)
	if err != nil {
		return err
	}
	logger.Info("offset table built",
		zap.Int("offsets", len(offsets)),
		zap.Int("horizon_years", appConfig.HorizonYears))

	ticker, err := scheduler.New(scheduler.Config{
		Offsets:         offsets,
		Store:           store,
		Pusher:          pusher,
		LeadMinutes:     appConfig.LeadMinutes,
		BatchSize:       appConfig.BatchSize,
		HorizonYears:    appConfig.HorizonYears,
		LedgerRetention: appConfig.LedgerRetention,
		Clock:           time.Now,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Subscribers:    store,
		VAPIDPublicKey: signer.PublicKey(),
		HorizonYears:   appConfig.HorizonYears,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cron.New()
	if _, err := cronRunner.AddFunc(appConfig.TickSpec, func() {
		if err := ticker.RunTick(signalCtx, time.Now()); err != nil {
			logger.Error("scheduler tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("registering tick %q: %w", appConfig.TickSpec, err)
	}
	cronRunner.Start()
	defer func() { <-cronRunner.Stop().Done() }()

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
