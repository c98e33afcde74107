package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/untreu2/divine-state/internal/config"
	"github.com/untreu2/divine-state/internal/curation"
	"github.com/untreu2/divine-state/internal/database"
	"github.com/untreu2/divine-state/internal/drafts"
	"github.com/untreu2/divine-state/internal/feed"
	"github.com/untreu2/divine-state/internal/logging"
	"github.com/untreu2/divine-state/internal/nostr"
	"github.com/untreu2/divine-state/internal/playback"
	"github.com/untreu2/divine-state/internal/profiles"
	"github.com/untreu2/divine-state/internal/proofs"
	"github.com/untreu2/divine-state/internal/readiness"
	"github.com/untreu2/divine-state/internal/recording"
	"github.com/untreu2/divine-state/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "divined",
		Short: "Divine state-layer development harness",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Probe HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("feed-page-size", defaults.GetInt("feed.page_size"), "Feed pagination page size")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("proof-signing-key", "", "Proof manifest signing key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "feed.page_size", "feed-page-size")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "proofs.signing_key", "proof-signing-key")
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

func runHarness(ctx context.Context) error {
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

	draftStore, err := drafts.NewService(drafts.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	source := nostr.NewMemorySource()
	defer source.Close()
	seedDemoEvents(source)

	profileCache, err := profiles.NewCache(profiles.CacheConfig{
		Fetcher:  syntheticFetcher{},
		Database: db,
		TTL:      appConfig.ProfileCacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	discoveryFeed, err := feed.NewDiscoveryReducer(feed.Config{
		Source:       source,
		Profiles:     profileCache,
		PageSize:     appConfig.FeedPageSize,
		FetchTimeout: appConfig.ProfileFetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer discoveryFeed.Close()

	curationReducer, err := curation.NewReducer(curation.Config{
		Service: &simCurationService{source: source},
		Source:  source,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer curationReducer.Close()

	gates := readiness.NewGates()
	defer gates.Close()
	gates.SetForeground(true)
	gates.SetRelayReady(true)

	if err := discoveryFeed.Start(ctx); err != nil {
		return err
	}
	if err := curationReducer.Start(ctx); err != nil {
		return err
	}

	notifier, err := newRecordingNotifier(appConfig, logger, draftStore)
	if err != nil {
		return err
	}

	selector, err := playback.NewSelector(playback.SelectorConfig{
		Primary:     simPlaybackFactory{engine: "primary"},
		Standard:    simPlaybackFactory{engine: "standard"},
		InitTimeout: appConfig.PlayerInitTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Feed:      discoveryFeed,
		Curation:  curationReducer,
		Readiness: gates,
		Drafts:    draftStore,
		Playback:  selector,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("probe server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		notifier.Close()
		<-notifier.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		notifier.Close()
		<-notifier.Done()
		return err
	}
}

func newRecordingNotifier(appConfig config.AppConfig, logger *zap.Logger, draftStore drafts.Store) (*recording.Notifier, error) {
	var signer *proofs.Signer
	if appConfig.ProofSigningKey != "" {
		var err error
		signer, err = proofs.NewSigner(proofs.SignerConfig{SigningKey: []byte(appConfig.ProofSigningKey)})
		if err != nil {
			return nil, err
		}
	}
	controller := recording.NewSimController(filepath.Join(os.TempDir(), "divined-captures"), nil)
	notifier, err := recording.NewNotifier(recording.Config{
		Controller:  controller,
		Drafts:      draftStore,
		Proofs:      signer,
		MaxDuration: appConfig.MaxClipDuration,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if err := notifier.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return notifier, nil
}

// seedDemoEvents fills the memory source with a deterministic backlog so the
// probe endpoints show real pagination behavior.
func seedDemoEvents(source *nostr.MemorySource) {
	base := time.Now().UTC()
	for i := 0; i < 60; i++ {
		id, err := nostr.NewEventID(strings.Repeat(fmt.Sprintf("%02x", i%256), 32))
		if err != nil {
			continue
		}
		pubkey, err := nostr.NewPubkey(strings.Repeat(fmt.Sprintf("%02x", (i%12)+1), 32))
		if err != nil {
			continue
		}
		source.AddBacklog(nostr.FeedDiscovery, nostr.VideoEvent{
			ID:        id,
			Pubkey:    pubkey,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			URL:       fmt.Sprintf("https://cdn.divine.example/clips/%d.mp4", i),
			Duration:  6 * time.Second,
		})
	}
}

// simPlaybackFactory stands in for the platform playback engines. The
// primary engine refuses clips hosted on the legacy CDN so the probe can
// demonstrate the fallback path.
type simPlaybackFactory struct {
	engine string
}

func (f simPlaybackFactory) NewController(ctx context.Context, url string) (playback.Controller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.engine == "primary" && strings.Contains(url, "legacy-cdn") {
		return nil, errors.New("range not satisfiable")
	}
	return &simPlaybackController{url: url, engine: f.engine}, nil
}

type simPlaybackController struct {
	url    string
	engine string
}

func (c *simPlaybackController) MediaURL() string { return c.url }
func (c *simPlaybackController) Engine() string   { return c.engine }
func (c *simPlaybackController) Release()         {}

// syntheticFetcher fabricates placeholder profiles for the harness.
type syntheticFetcher struct{}

func (syntheticFetcher) FetchProfiles(ctx context.Context, pubkeys []nostr.Pubkey) ([]profiles.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]profiles.Profile, 0, len(pubkeys))
	for _, pubkey := range pubkeys {
		result = append(result, profiles.Profile{
			Pubkey:      pubkey,
			Name:        "npub-" + pubkey.String()[:8],
			DisplayName: "Demo " + pubkey.String()[:4],
			UpdatedAt:   time.Now().UTC(),
		})
	}
	return result, nil
}

// simCurationService derives curation sets from the discovery window.
type simCurationService struct {
	source *nostr.MemorySource
}

func (s *simCurationService) VideosForSetType(kind nostr.FeedKind) []nostr.VideoEvent {
	videos := s.source.DiscoveryVideos()
	if len(videos) > 10 {
		videos = videos[:10]
	}
	return videos
}

func (s *simCurationService) RefreshIfNeeded(ctx context.Context) error {
	return ctx.Err()
}

func (s *simCurationService) RefreshCurationSets(ctx context.Context) error {
	return ctx.Err()
}

func (s *simCurationService) RefreshTrendingFromAnalytics(ctx context.Context) error {
	return ctx.Err()
}

func (s *simCurationService) AnalyticsTrendingVideos() []nostr.VideoEvent {
	videos := s.source.DiscoveryVideos()
	if len(videos) <= 10 {
		return videos
	}
	return videos[len(videos)-10:]
}
