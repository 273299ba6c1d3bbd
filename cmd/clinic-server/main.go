package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/digest"
	"github.com/clinic/clinic/internal/platform/ids"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/reporting"
	"github.com/clinic/clinic/internal/platform/sandbox"
	"github.com/clinic/clinic/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Seed demo data, generate a report and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			patient, _ := cmd.Flags().GetString("patient")
			seed, _ := cmd.Flags().GetInt64("seed")
			return runReport(cmd.Context(), cmd.OutOrStdout(), reportOptions{
				Kind:      kind,
				Start:     start,
				End:       end,
				PatientID: patient,
				Seed:      seed,
			})
		},
	}
	cmd.Flags().String("kind", string(reporting.KindMonthlyVisits), "report kind")
	cmd.Flags().String("start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "range end (YYYY-MM-DD)")
	cmd.Flags().String("patient", "", "patient ID for the patient-history report")
	cmd.Flags().Int64("seed", 42, "demo data seed")
	return cmd
}

func slotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Print the bookable appointment time slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, slot := range scheduling.TimeSlots() {
				fmt.Fprintln(cmd.OutOrStdout(), slot)
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token signed with AUTH_SIGNING_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runToken(cmd.OutOrStdout(), cfg, args[0], roles, ttl)
		},
	}
	cmd.Flags().StringSlice("role", []string{auth.RoleReceptionist}, "role to grant (repeatable)")
	cmd.Flags().Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	return cmd
}

func tokenConfig(cfg *config.Config, ttl time.Duration) auth.TokenConfig {
	return auth.TokenConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		TTL:        ttl,
	}
}

func runToken(w io.Writer, cfg *config.Config, subject string, roles []string, ttl time.Duration) error {
	if cfg.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is not set")
	}
	known := []string{auth.RoleAdmin, auth.RolePhysician, auth.RoleReceptionist, auth.RoleBilling}
	if unknown := lo.Without(roles, known...); len(unknown) > 0 {
		return fmt.Errorf("unknown roles %v, want any of %v", unknown, known)
	}
	raw, err := auth.NewTokens(tokenConfig(cfg, ttl)).Issue(subject, roles)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, raw)
	return err
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// app holds the wired services shared by the server and the CLI.
type app struct {
	patients     identity.PatientRepository
	doctors      identity.DoctorRepository
	appointments scheduling.AppointmentRepository
	records      billing.RecordRepository

	identity   *identity.Service
	scheduling *scheduling.Service
	billing    *billing.Service
	reports    *reporting.Engine
	seeder     *sandbox.Seeder
}

func newApp(cfg *config.Config, policy auth.Policy, logger zerolog.Logger) (*app, error) {
	gen, err := ids.New(cfg.PatientIDScheme, cfg.PatientIDPrefix)
	if err != nil {
		return nil, err
	}

	a := &app{
		patients:     identity.NewPatientRepoMem(),
		doctors:      identity.NewDoctorRepoMem(),
		appointments: scheduling.NewAppointmentRepoMem(),
		records:      billing.NewRecordRepoMem(),
	}
	a.identity = identity.NewService(a.patients, a.doctors, gen, policy, logger)
	a.scheduling = scheduling.NewService(a.appointments, a.identity, policy, logger)
	a.billing = billing.NewService(a.records, a.identity, policy, logger)
	a.reports = reporting.NewEngine(a.appointments, a.records, a.patients, policy, cfg.ReportLookbackMonths)

	seedCfg := sandbox.DefaultSeedConfig()
	seedCfg.Seed = cfg.SeedValue
	a.seeder = sandbox.NewSeeder(a.identity, a.scheduling, a.billing, seedCfg, logger)
	return a, nil
}

// seed fills the stores with demo data as the sandbox admin.
func (a *app) seed(ctx context.Context, seed int64) (*sandbox.SeedResult, error) {
	cfg := sandbox.DefaultSeedConfig()
	cfg.Seed = seed
	return a.seeder.Seed(auth.WithUser(ctx, "sandbox", []string{auth.RoleAdmin}), cfg)
}

// forward pushes every store mutation to the websocket hub.
func (a *app) forward(hub *websocket.Hub) {
	a.patients.Subscribe(hub.Forward(websocket.TopicPatients))
	a.doctors.Subscribe(hub.Forward(websocket.TopicDoctors))
	a.appointments.Subscribe(hub.Forward(websocket.TopicAppointments))
	a.records.Subscribe(hub.Forward(websocket.TopicBilling))
}

func buildPolicy(cfg *config.Config) (auth.Policy, error) {
	policies := []auth.Policy{auth.NewRolePolicy(auth.DefaultRoleGrants())}
	if cfg.RecordPassphraseHash != "" {
		gate, err := auth.NewPassphrasePolicy(cfg.RecordPassphraseHash,
			auth.ActionPatientView, auth.ActionPatientEdit, auth.ActionPatientDelete)
		if err != nil {
			return nil, err
		}
		policies = append(policies, gate)
	}
	return auth.AllOf(policies...), nil
}

// newServer builds the Echo instance with middleware and all routes.
func newServer(cfg *config.Config, a *app, hub *websocket.Hub, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.PassphraseHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))

	apiV1 := e.Group("/api/v1")

	// Auth middleware
	tokens := auth.NewTokens(tokenConfig(cfg, 0))
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthenticate(tokens))
	} else {
		apiV1.Use(auth.Authenticate(tokens))
	}
	apiV1.Use(auth.Passphrase())
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}, logger))
	apiV1.Use(middleware.Audit(logger))

	identity.NewHandler(a.identity).RegisterRoutes(apiV1)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(apiV1)
	billing.NewHandler(a.billing).RegisterRoutes(apiV1)
	reporting.NewHandler(a.reports).RegisterRoutes(apiV1)

	if cfg.IsDev() {
		sandbox.NewSeedHandler(a.seeder).RegisterRoutes(apiV1)
	}

	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	policy, err := buildPolicy(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build authorization policy")
	}
	a, err := newApp(cfg, policy, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}

	hub := websocket.NewHub(logger)
	a.forward(hub)

	if cfg.SeedDemo {
		if _, err := a.seed(context.Background(), cfg.SeedValue); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed demo data")
		}
	}

	if cfg.DigestSchedule != "" {
		d := digest.New(a.reports, logger)
		if err := d.Start(cfg.DigestSchedule); err != nil {
			logger.Fatal().Err(err).Msg("failed to schedule digest")
		}
		defer d.Stop()
	}

	e := newServer(cfg, a, hub, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

type reportOptions struct {
	Kind      string
	Start     string
	End       string
	PatientID string
	Seed      int64
}

// runReport seeds an in-memory clinic and writes one report to w.
func runReport(ctx context.Context, w io.Writer, opts reportOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := &config.Config{
		Env:                  "development",
		PatientIDScheme:      ids.SchemeSequence,
		PatientIDPrefix:      "P",
		SeedValue:            opts.Seed,
		ReportLookbackMonths: 6,
	}
	a, err := newApp(cfg, auth.AllowAll, zerolog.Nop())
	if err != nil {
		return err
	}
	if _, err := a.seed(ctx, opts.Seed); err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}

	rng, err := a.reports.ResolveRange(strings.TrimSpace(opts.Start), strings.TrimSpace(opts.End))
	if err != nil {
		return err
	}
	report, err := a.reports.Generate(ctx, reporting.Request{
		Kind:      reporting.Kind(opts.Kind),
		Range:     rng,
		PatientID: opts.PatientID,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
