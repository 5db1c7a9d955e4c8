package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/worksheetgen/internal/api"
	"github.com/pavelanni/worksheetgen/internal/handler"
	appI18n "github.com/pavelanni/worksheetgen/internal/i18n"
	"github.com/pavelanni/worksheetgen/internal/store"
	"github.com/pavelanni/worksheetgen/internal/wizard"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local wizard HTTP service",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("access-password", "", "Password required on every request (or set WORKSHEETGEN_ACCESS_PASSWORD)")
	f.StringSlice("cors-origins", []string{"http://localhost:3000", "http://localhost:5173"}, "Origins allowed to call the API from a browser")
	addWizardFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// The client reports 401s to the controller, which is built after it.
	var ctrl *wizard.Controller
	client := api.New(v.GetString("api-url"), api.WithExpiryHook(func(token string) {
		ctrl.Expire(token)
	}))
	ctrl = wizard.New(client, db, pollOptions(v)...)
	defer ctrl.Close()

	if err := ctrl.Restore(ctx); err != nil {
		slog.Warn("failed to restore session", "error", err)
	}

	var opts []handler.Option
	if pw := v.GetString("access-password"); pw != "" {
		hash, err := handler.HashAccessPassword(pw)
		if err != nil {
			return fmt.Errorf("hash access password: %w", err)
		}
		opts = append(opts, handler.WithAccessPassword(hash))
	}
	h := handler.New(ctrl, db, opts...)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Routes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept-Language", handler.AccessHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	})

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"api_url", client.BaseURL(),
		"lang", lang,
		"access_password", v.GetString("access-password") != "",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
