// Package main provides the storefront core entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonavia/sonavia/internal/api/webhook"
	"github.com/sonavia/sonavia/internal/app/checkout"
	"github.com/sonavia/sonavia/internal/app/player"
	"github.com/sonavia/sonavia/internal/app/store"
	"github.com/sonavia/sonavia/internal/app/suggest"
	"github.com/sonavia/sonavia/internal/domain/license"
	"github.com/sonavia/sonavia/internal/domain/track"
	"github.com/sonavia/sonavia/internal/infra/auth"
	"github.com/sonavia/sonavia/internal/infra/backend"
	"github.com/sonavia/sonavia/internal/infra/cartdb"
	"github.com/sonavia/sonavia/internal/infra/config"
	"github.com/sonavia/sonavia/internal/infra/logger"
	"github.com/sonavia/sonavia/internal/infra/payment"
)

var (
	app        = kingpin.New("storefront", "sonavia storefront core")
	configPath = app.Flag("config", "Path to config file").Default("config/storefront.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	checkoutCmd = app.Command("checkout", "Create a hosted checkout for the persisted cart and print its URL")

	downloadCmd     = app.Command("download", "Print a time-limited download URL for an entitled track")
	downloadTrackID = downloadCmd.Arg("track-id", "Catalog track ID").Required().String()

	searchCmd   = app.Command("search", "Print catalog tracks matching a query")
	searchQuery = searchCmd.Arg("query", "Title search query").Required().String()
	searchTag   = searchCmd.Flag("tag", "Only show tracks carrying this tag").String()
)

func init() {
	app.Command("start", "Start the storefront core (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	deps, err := buildDeps(cfg)
	if err != nil {
		zlog.Fatal().Msgf("Failed to initialize: %v", err)
	}
	defer deps.close()

	switch command {
	case checkoutCmd.FullCommand():
		err = runCheckout(deps)
	case downloadCmd.FullCommand():
		err = runDownload(deps, *downloadTrackID)
	case searchCmd.FullCommand():
		err = runSearch(cfg, deps, *searchQuery)
	default:
		err = runStart(cfg, deps)
	}
	if err != nil {
		zlog.Error().Msgf("Storefront error: %v", err)
		os.Exit(1)
	}
}

// deps bundles the wired collaborator clients and the core.
type deps struct {
	auth     *auth.Client
	backend  *backend.Client
	store    *store.Store
	engine   *player.Engine
	checkout *checkout.Service
	carts    *cartdb.DB
}

func (d *deps) close() {
	d.engine.Close()
	d.carts.Close()
}

func buildDeps(cfg *config.Config) (*deps, error) {
	backendClient, err := backend.New(backend.Config{
		BaseURL:      cfg.Backend.BaseURL,
		APIKey:       cfg.Backend.APIKey,
		Timeout:      time.Duration(cfg.Backend.TimeoutSec) * time.Second,
		RateLimitRPS: cfg.Backend.RateLimitRPS,
		RateBurst:    cfg.Backend.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	authClient, err := auth.New(auth.Config{
		BaseURL: cfg.Auth.BaseURL,
		APIKey:  cfg.Auth.APIKey,
		Timeout: time.Duration(cfg.Auth.TimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}

	var settings payment.Settings
	if err := cfg.Payment.DecodeSettings(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode payment settings: %w", err)
	}
	paymentClient, err := payment.New(payment.Config{
		BaseURL:  cfg.Payment.BaseURL,
		APIKey:   cfg.Payment.APIKey,
		Settings: settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment client: %w", err)
	}

	carts, err := cartdb.Open(cfg.Cart.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cart database: %w", err)
	}

	st := store.New(backendClient, carts)
	return &deps{
		auth:     authClient,
		backend:  backendClient,
		store:    st,
		engine:   player.NewEngine(cfg.Player.InitialVolume),
		checkout: checkout.New(paymentClient, st),
		carts:    carts,
	}, nil
}

// restoreSession resumes the persisted session from SESSION_REFRESH_TOKEN
// and installs it in the store.
func restoreSession(ctx context.Context, d *deps) error {
	refreshToken := os.Getenv("SESSION_REFRESH_TOKEN")
	if refreshToken == "" {
		return fmt.Errorf("SESSION_REFRESH_TOKEN is not set")
	}
	session, err := d.auth.Restore(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	d.store.SetSession(session)
	return nil
}

// runStart runs the core until interrupted: auth changes drive the store,
// the webhook listener closes the checkout-completion staleness window.
func runStart(cfg *config.Config, d *deps) error {
	ctx := context.Background()

	// Route auth change notifications into the store. The store reacts to
	// session changes; it never talks to the auth collaborator directly.
	go func() {
		for change := range d.auth.Changes() {
			zlog.Debug().Msgf("auth change: %s", change.Event)
			switch change.Event {
			case auth.EventSignedIn, auth.EventTokenRefreshed:
				d.store.SetSession(change.Session)
			case auth.EventSignedOut:
				d.store.SetSession(nil)
			}
		}
	}()

	// Restore a persisted session on app start, if available.
	if refreshToken := os.Getenv("SESSION_REFRESH_TOKEN"); refreshToken != "" {
		go func() {
			if _, err := d.auth.Restore(ctx, refreshToken); err != nil {
				zlog.Warn().Msgf("Failed to restore session: %v", err)
			}
		}()
	}

	// Log playback events at debug level; UI observers attach the same way.
	go func() {
		for ev := range d.engine.Events() {
			if ev.Type == player.EventProgress {
				continue
			}
			zlog.Debug().Msgf("playback event: %s state=%s", ev.Type, ev.State)
		}
	}()

	hooks := webhook.New(webhook.Config{
		Addr:  cfg.Webhook.Addr,
		Token: cfg.Webhook.Token,
	}, d.store)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := hooks.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("webhook listener error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hooks.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Webhook shutdown failed: %v", err)
	}
	return nil
}

// runCheckout hands the persisted cart to the merchant of record and
// prints the hosted checkout URL.
func runCheckout(d *deps) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := restoreSession(ctx, d); err != nil {
		return err
	}

	url, err := d.checkout.InitiateCheckout(ctx)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

// runDownload refreshes entitlements and prints a signed download URL.
func runDownload(d *deps, trackID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := restoreSession(ctx, d); err != nil {
		return err
	}
	if err := d.store.RefreshEntitlements(ctx); err != nil {
		return fmt.Errorf("failed to refresh entitlements: %w", err)
	}
	if err := d.store.RefreshSubscriptionProfile(ctx); err != nil {
		zlog.Warn().Msgf("Failed to refresh profile: %v", err)
	}

	url, err := d.store.TrackDownloadURL(ctx, trackID)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

// runSearch runs a query through the suggestion fetcher and prints the
// matching tracks.
func runSearch(cfg *config.Config, d *deps, query string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan []track.Track, 1)
	fetcher := suggest.NewFetcher(d.backend, suggest.Config{
		Debounce:   time.Duration(cfg.Suggest.DebounceMs) * time.Millisecond,
		MaxResults: cfg.Suggest.MaxResults,
		Tag:        *searchTag,
	}, func(tracks []track.Track) {
		done <- tracks
	})
	defer fetcher.Close()

	fetcher.Query(ctx, query)

	select {
	case tracks := <-done:
		if len(tracks) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, t := range tracks {
			price, _ := t.Price(license.TypeStandard)
			fmt.Printf("%s  %s / %s  $%.2f\n", t.ID, t.Title, t.ArtistLine(), price)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("search timed out")
	}
}
