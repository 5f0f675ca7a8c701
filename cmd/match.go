package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tender-matcher/internal/ai"
	"github.com/spigell/tender-matcher/internal/ai/chatmodel"
	"github.com/spigell/tender-matcher/internal/ai/gemini"
	"github.com/spigell/tender-matcher/internal/filtering"
	"github.com/spigell/tender-matcher/internal/logger"
	"github.com/spigell/tender-matcher/internal/matching"
	"github.com/spigell/tender-matcher/internal/scoring"
	"github.com/spigell/tender-matcher/internal/secrets"
	"github.com/spigell/tender-matcher/internal/tender"
)

const (
	PromptShowTable           = "Show results table"
	PromptReportByClients     = "Report by clients"
	PromptResultsToFile       = "Dump results to file"
	PromptAppendToExcludeFile = "Append matched tenders to exclude file"
	PromptExit                = "Exit"
)

var errExit = errors.New("exit requested")

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match tenders from a CSV export against the client profiles",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("tenders-file", "t", "", "CSV export with tenders")
	matchCmd.Flags().StringP("exclude-file", "e", "", "file with tenders to exclude. Default is unset.")
	matchCmd.Flags().String("metrics-addr", "", "expose prometheus metrics on this address during the run, e.g. :9090")
	matchCmd.Flags().StringP("output", "o", "", "write results as JSON to the file, - for stdout")
	matchCmd.Flags().IntP("limit", "l", 20, "rows in the results table, 0 for all")
	matchCmd.Flags().BoolP("interactive", "i", false, "open a menu when the run is over")
	matchCmd.Flags().Bool("no-ai", false, "score with the rules only")

	viper.BindPFlag("tenders-file", matchCmd.Flags().Lookup("tenders-file"))
	viper.BindPFlag("exclude-file", matchCmd.Flags().Lookup("exclude-file"))
	viper.BindPFlag("metrics-addr", matchCmd.Flags().Lookup("metrics-addr"))
}

func match(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the tender-matcher", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if strings.TrimSpace(config.TendersFile) == "" {
		logger.Fatal("tenders file is required", zap.String("hint", "pass --tenders-file or set tenders-file in the config"))
	}

	contracts, err := tender.LoadContractsCSV(config.TendersFile)
	if err != nil {
		logger.Fatal("loading tenders", zap.Error(err))
	}
	logger.Info("loaded tenders", zap.Int("count", contracts.Len()), zap.String("file", config.TendersFile))

	clients, err := tender.LoadClientProfiles(config.ClientsFile)
	if err != nil {
		logger.Fatal("loading client profiles", zap.Error(err))
	}
	logger.Info("loaded client profiles", zap.Int("count", clients.Len()), zap.String("file", config.ClientsFile))

	if clients.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no client profiles"), zap.String("hint", "add one with `clients add`"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	contracts, err = filtering.Run(ctx, filtering.Deps{Logger: logger}, prepareFilters(config), contracts)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if contracts.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no tenders left after filters"))
		return
	}

	registry := prometheus.NewRegistry()
	metrics := matching.NewMetrics(registry)
	if config.MetricsAddr != "" {
		serveMetrics(ctx, config.MetricsAddr, registry, logger)
	}

	noAI, _ := cmd.Flags().GetBool("no-ai")
	augmenter, err := newAugmenter(ctx, config.AI, noAI, logger)
	if err != nil {
		logger.Fatal("configuring AI analysis", zap.Error(err))
	}

	// A nil *ai.Augmenter must not end up inside a non-nil interface.
	var escalation matching.Augmenter
	if augmenter != nil {
		escalation = augmenter
	}

	engine := matching.NewEngine(scoring.NewModel(config.Criteria), escalation, config.Criteria, config.Matching, logger, metrics)

	stop := matching.NewStopSignal()
	watchCtx, stopWatching := context.WithCancel(ctx)
	watchSignals(watchCtx, stop, augmenter, logger)

	report := engine.Run(ctx, contracts, clients, progressPrinter(os.Stderr), stop)
	stopWatching()
	fmt.Fprintln(os.Stderr)

	fields := []zap.Field{
		zap.String(runIDField, report.RunID),
		zap.Int("evaluated_pairs", report.Evaluated),
		zap.Int("total_pairs", report.Total),
		zap.Int("matches", report.Results.Len()),
	}
	switch {
	case report.Err != nil:
		logger.Error("matching interrupted by a failure, showing partial results", append(fields, zap.Error(report.Err))...)
	case report.Outcome == matching.OutcomeStopped:
		logger.Warn("matching stopped, showing partial results", fields...)
	default:
		logger.Info("matching completed", fields...)
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := writeResults(output, report.Results); err != nil {
			logger.Fatal("writing results", zap.Error(err))
		}
		if output != "-" {
			logger.Info("results written", zap.String("filename", output))
		}
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if err := report.Results.WriteTable(os.Stdout, limit); err != nil {
		logger.Fatal("printing results", zap.Error(err))
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	if !interactive || report.Results.Len() == 0 {
		return
	}

	for {
		items := []string{PromptShowTable, PromptReportByClients, PromptResultsToFile}
		if config.ExcludeFile != "" {
			items = append(items, PromptAppendToExcludeFile)
		}

		menu := promptui.Select{
			Label: "What next?",
			Items: append(items, PromptExit),
		}

		_, action, err := menu.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, logger, config, report.Results, limit); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

// The logger variable in match shadows the package.
const runIDField = logger.FieldRunID

func handleAction(action string, logger *zap.Logger, config *Config, results *tender.MatchResults, limit int) error {
	switch action {
	case PromptShowTable:
		return results.WriteTable(os.Stdout, limit)
	case PromptReportByClients:
		pretty, _ := json.MarshalIndent(results.ReportByClient(), "", "  ")
		logger.Info(string(pretty), zap.Int("matches count", results.Len()))
		return nil
	case PromptResultsToFile:
		filename, err := results.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		excluded, err := tender.LoadExcludedContracts(config.ExcludeFile)
		if err != nil {
			return err
		}

		excluded.Append(matchedContracts(results).ToExcluded())

		if err := excluded.ToFile(config.ExcludeFile); err != nil {
			return err
		}

		logger.Info("appended to exclude file", zap.String("filename", config.ExcludeFile))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// matchedContracts returns each matched tender once, in ranking order.
func matchedContracts(results *tender.MatchResults) *tender.Contracts {
	seen := make(map[*tender.Contract]struct{})
	contracts := &tender.Contracts{}
	for _, r := range results.Items {
		if _, ok := seen[r.Tender]; ok {
			continue
		}
		seen[r.Tender] = struct{}{}
		contracts.Items = append(contracts.Items, r.Tender)
	}
	return contracts
}

func prepareFilters(config *Config) []filtering.Filter {
	var buyers []string
	if config.Filters != nil {
		buyers = config.Filters.ExcludeBuyers
	}

	return []filtering.Filter{
		filtering.NewExcludedBuyers(buyers),
		filtering.NewExcludeFile(config.ExcludeFile),
	}
}

// newAugmenter returns nil when AI analysis is switched off. A provider that
// cannot be built (usually a missing key) still yields an augmenter whose
// every analysis falls back to the neutral score.
func newAugmenter(ctx context.Context, cfg *AIConfig, disabled bool, logger *zap.Logger) (*ai.Augmenter, error) {
	if cfg == nil || !cfg.Enabled || disabled {
		logger.Info("AI analysis disabled")
		return nil, nil
	}

	generator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		var unsupported *unsupportedProviderError
		if errors.As(err, &unsupported) {
			return nil, err
		}

		logger.Warn("AI provider is unavailable, analysed pairs will get neutral scores", zap.Error(err))
		generator = ai.Unavailable(err)
	}

	return ai.NewAugmenter(generator, logger, ai.Options{
		SupersedePending: cfg.SupersedePending,
		MaxLogLength:     cfg.MaxLogLength,
	}), nil
}

type unsupportedProviderError struct {
	provider string
}

func (e *unsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported ai provider: %s", e.provider)
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	switch provider := strings.TrimSpace(strings.ToLower(cfg.Provider)); provider {
	case "", "gemini":
		settings := cfg.Gemini
		if settings == nil {
			settings = &GeminiConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "gemini api key",
			File: settings.APIKeyFile,
			Env:  "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		return gemini.NewGenerator(ctx, apiKey, gemini.Config{
			Model:           settings.Model,
			Temperature:     ai.Temperature,
			MaxOutputTokens: ai.MaxOutputTokens,
		}, logger)
	case chatmodel.ProviderOpenAI:
		settings := cfg.OpenAI
		if settings == nil {
			settings = &OpenAIConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "openai api key",
			File: settings.APIKeyFile,
			Env:  "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY)", err)
		}

		return chatmodel.NewOpenAI(ctx, apiKey, chatmodel.Config{
			Model:       settings.Model,
			BaseURL:     settings.BaseURL,
			Temperature: ai.Temperature,
			MaxTokens:   ai.MaxOutputTokens,
		}, logger)
	case chatmodel.ProviderOllama:
		settings := cfg.Ollama
		if settings == nil {
			settings = &OllamaConfig{}
		}

		return chatmodel.NewOllama(ctx, chatmodel.Config{
			Model:   settings.Model,
			BaseURL: settings.BaseURL,
		}, logger)
	default:
		return nil, &unsupportedProviderError{provider: cfg.Provider}
	}
}

// watchSignals turns the first interrupt into a cooperative stop and the
// second one into cancellation of the analysis requests still in flight.
func watchSignals(ctx context.Context, stop *matching.StopSignal, augmenter *ai.Augmenter, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if !stop.Stopped() {
					logger.Warn("stop requested, finishing pairs in progress", zap.String("signal", sig.String()))
					stop.Stop()
					continue
				}

				if augmenter == nil {
					continue
				}
				n := augmenter.CancelPending()
				logger.Warn("cancelled pending analysis requests", zap.Int("count", n))
			}
		}
	}()
}

func progressPrinter(w io.Writer) matching.ProgressFunc {
	return func(fraction float64) {
		fmt.Fprintf(w, "\rmatching: %5.1f%%", fraction*100)
	}
}

func writeResults(path string, results *tender.MatchResults) error {
	if path == "-" {
		return results.WriteJSON(os.Stdout)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return results.WriteJSON(file)
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}
