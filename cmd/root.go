package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/tender-matcher/internal/matching"
	"github.com/spigell/tender-matcher/internal/scoring"
)

const (
	app       = "tender-matcher"
	envPrefix = "TENDER_MATCHER"
)

type Config struct {
	TendersFile string           `mapstructure:"tenders-file"`
	ClientsFile string           `mapstructure:"clients-file"`
	ExcludeFile string           `mapstructure:"exclude-file"`
	MetricsAddr string           `mapstructure:"metrics-addr"`
	Filters     *FiltersConfig   `mapstructure:"filters"`
	Criteria    scoring.Criteria `mapstructure:"criteria"`
	Matching    matching.Config  `mapstructure:"matching"`
	AI          *AIConfig        `mapstructure:"ai"`
}

type FiltersConfig struct {
	ExcludeBuyers []string `mapstructure:"exclude-buyers"`
}

type AIConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Provider         string        `mapstructure:"provider"`
	SupersedePending bool          `mapstructure:"supersede-pending"`
	MaxLogLength     int           `mapstructure:"max-log-length"`
	Gemini           *GeminiConfig `mapstructure:"gemini"`
	OpenAI           *OpenAIConfig `mapstructure:"openai"`
	Ollama           *OllamaConfig `mapstructure:"ollama"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
}

type OllamaConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base-url"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "tender-matcher ranks procurement tenders against client business profiles",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is tender-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("clients-file", "clients.yaml", "client profiles store")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("clients-file", rootCmd.PersistentFlags().Lookup("clients-file"))

	setDefaults()
}

func setDefaults() {
	criteria := scoring.DefaultCriteria()
	viper.SetDefault("criteria.description-weight", criteria.DescriptionWeight)
	viper.SetDefault("criteria.location-weight", criteria.LocationWeight)
	viper.SetDefault("criteria.value-weight", criteria.ValueWeight)
	viper.SetDefault("criteria.cpv-bonus", criteria.CPVBonus)
	viper.SetDefault("criteria.minimum-score", criteria.MinimumScore)
	viper.SetDefault("criteria.ai-threshold", criteria.AIThreshold)

	engine := matching.DefaultConfig()
	viper.SetDefault("matching.batch-size", engine.BatchSize)
	viper.SetDefault("matching.progress-interval", engine.ProgressInterval)
	viper.SetDefault("matching.batch-delay", engine.BatchDelay)
	viper.SetDefault("matching.max-concurrency", engine.MaxConcurrency)

	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.max-log-length", 200)
}

func initConfig() {
	// A missing .env is normal; everything it sets can come from the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if config == nil {
		return nil, errors.New("config is empty")
	}

	if err := config.Criteria.Validate(); err != nil {
		return nil, fmt.Errorf("criteria: %w", err)
	}

	return config, nil
}
