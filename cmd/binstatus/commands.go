package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binstatus/internal/adapter/dynamodb"
	adapthttp "binstatus/internal/adapter/http"
	"binstatus/internal/adapter/postgres"
	"binstatus/internal/config"
	"binstatus/internal/logging"
	"binstatus/internal/metrics"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "binstatus",
		Short:         "Record waste bin fill-level reports",
		Long:          "Accepts fill-level reports for waste bins, keeps a running average per bin and appends every report to an audit log.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "read settings from this .env file (default ./.env when present)")

	load := func() (config.Config, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return config.Config{}, err
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		return cfg, nil
	}

	lambdaCmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLambda(cmd.Context(), load)
		},
	}
	root.RunE = lambdaCmd.RunE

	root.AddCommand(
		lambdaCmd,
		newServeCmd(load),
		newInvokeCmd(load),
		newMigrateCmd(load),
	)
	return root
}

type loader func() (config.Config, error)

func runLambda(ctx context.Context, load loader) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	// Nothing scrapes a Lambda, so the store is not instrumented.
	repo, closeFn, err := newRepository(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	h := newHandler(cfg, repo, nil)
	lambda.Start(func(ctx context.Context, payload json.RawMessage) (events.APIGatewayV2HTTPResponse, error) {
		return h.Handle(ctx, payload), nil
	})
	return nil
}

func newServeCmd(load loader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the update routes over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			repo, closeFn, err := newRepository(ctx, cfg, m)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			opts := []adapthttp.Option{adapthttp.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))}
			if cfg.OIDCIssuer != "" {
				v, err := adapthttp.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
				if err != nil {
					return err
				}
				opts = append(opts, adapthttp.WithVerifier(v))
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           adapthttp.New(newHandler(cfg, repo, m), opts...).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Info().Msg("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	return cmd
}

func newInvokeCmd(load loader) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Handle one payload from a file or stdin and print the response",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close() //nolint:errcheck
				in = f
			}
			payload, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			repo, closeFn, err := newRepository(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			resp := newHandler(cfg, repo, nil).Handle(cmd.Context(), payload)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "payload file (default stdin)")
	return cmd
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the bins and reports tables for the configured backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			switch cfg.StoreBackend {
			case config.BackendDynamoDB:
				client, err := dynamodb.NewClient(ctx, cfg.Region, cfg.DynamoDBEndpoint)
				if err != nil {
					return err
				}
				if err := dynamodb.Migrate(ctx, client, cfg.BinsTable, cfg.ReportsTable); err != nil {
					return err
				}
			case config.BackendPostgres:
				db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.BinsTable, cfg.ReportsTable)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck
				if err := db.Migrate(ctx); err != nil {
					return err
				}
			default:
				log.Info().Str("backend", cfg.StoreBackend).Msg("nothing to migrate")
				return nil
			}

			log.Info().Str("backend", cfg.StoreBackend).Msg("migrated")
			return nil
		},
	}
}
