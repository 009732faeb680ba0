package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/discovery"
	"github.com/Rabiegha/b2b-email-campaign/internal/dnsx"
	"github.com/Rabiegha/b2b-email-campaign/internal/domain"
	"github.com/Rabiegha/b2b-email-campaign/internal/pattern"
	"github.com/Rabiegha/b2b-email-campaign/internal/pipeline"
	"github.com/Rabiegha/b2b-email-campaign/internal/verify"
	"github.com/Rabiegha/b2b-email-campaign/pkg/ddg"
	"github.com/Rabiegha/b2b-email-campaign/pkg/hunter"
)

var (
	discoverLimit int
	discoverForce bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find email addresses for prospects without a suggestion",
	Long:  "Resolves each company's domain, crawls its site for published addresses, infers the dominant email pattern and grades one candidate address per prospect.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "discover: init store")
		}
		defer s.Close()

		dns := dnsx.New(5 * time.Second)
		searcher := ddg.NewClient(ddg.WithBaseURL(cfg.Search.BaseURL))
		resolver := domain.NewResolver(searcher, dns, s, cfg.Resolver.GuessTLDs, discoverForce)
		discoverer := discovery.New(
			cfg.Crawl.MaxPages,
			time.Duration(cfg.Crawl.TimeoutSecs)*time.Second,
			cfg.Crawl.RequestsPerSecond,
		)
		inferencer := pattern.NewInferencer(s, discoverForce)

		var hunterClient hunter.Client
		if cfg.Hunter.Key != "" {
			hunterClient = hunter.NewClient(cfg.Hunter.Key, hunter.WithBaseURL(cfg.Hunter.BaseURL))
		}
		var prober verify.Prober
		if cfg.Verify.SMTPProbe {
			prober = verify.NewSMTPProbe(
				dns,
				cfg.Verify.ProbeHelloDomain,
				cfg.Verify.ProbeFrom,
				time.Duration(cfg.Verify.ProbeTimeoutSecs)*time.Second,
			)
		}

		p := pipeline.New(pipeline.Config{
			Store:      s,
			Resolver:   resolver,
			Discoverer: discoverer,
			Inferencer: inferencer,
			Verifier:   verify.New(hunterClient, prober),
			Hunter:     hunterClient,
			MaxWorkers: cfg.Pipeline.MaxConcurrentCompanies,
			Force:      discoverForce,
			Progress: func(company string, done, total int) {
				cmd.Printf("[%d/%d] %s\n", done, total, company)
			},
		})

		stats, err := p.Run(ctx, discoverLimit)
		if err != nil {
			return eris.Wrap(err, "discover: run pipeline")
		}

		zap.L().Info("discovery complete",
			zap.Int("companies", stats.Companies),
			zap.Int("resolved", stats.Resolved),
			zap.Int("unresolved", stats.Unresolved),
			zap.Int("failed", stats.Failed),
			zap.Int("found", stats.Found),
			zap.Int("not_found", stats.NotFound),
		)
		cmd.Printf("Companies: %d (%d resolved, %d unresolved, %d failed)\n",
			stats.Companies, stats.Resolved, stats.Unresolved, stats.Failed)
		cmd.Printf("Suggestions: %d found, %d not found\n", stats.Found, stats.NotFound)
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "max prospects to process (0 = all pending)")
	discoverCmd.Flags().BoolVar(&discoverForce, "force", false, "recompute cached domains and patterns")
	rootCmd.AddCommand(discoverCmd)
}
