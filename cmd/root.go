package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/logger"
	"github.com/spigell/commandjobs/internal/prompt"
	"github.com/spigell/commandjobs/internal/secrets"
	"github.com/spigell/commandjobs/internal/store"
)

const (
	app       = "commandjobs"
	envPrefix = "COMMANDJOBS"
)

type Config struct {
	Database       store.Config         `mapstructure:"database"`
	ResumeFile     string               `mapstructure:"resume-file" validate:"required"`
	LogFile        string               `mapstructure:"log-file"`
	Sources        SourcesConfig        `mapstructure:"sources"`
	Classification ClassificationConfig `mapstructure:"classification"`
	AI             *AIConfig            `mapstructure:"ai" validate:"required"`
	Matches        MatchesConfig        `mapstructure:"matches"`
}

type SourcesConfig struct {
	UserAgent  string        `mapstructure:"user-agent"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	HackerNews struct {
		URL       string        `mapstructure:"url" validate:"omitempty,url"`
		PageDelay time.Duration `mapstructure:"page-delay" validate:"gte=0"`
	} `mapstructure:"hacker-news"`
	WAAS struct {
		URL string `mapstructure:"url" validate:"omitempty,url"`
	} `mapstructure:"waas"`
}

type ClassificationConfig struct {
	ListingsPerBatch int           `mapstructure:"listings-per-batch" validate:"min=1"`
	MaxBatches       int           `mapstructure:"max-batches" validate:"gte=0"`
	Prompt           prompt.Config `mapstructure:"prompt"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	Gemini   *GeminiConfig `mapstructure:"gemini" validate:"required"`
}

type GeminiConfig struct {
	APIKeyFile        string        `mapstructure:"api-key-file"`
	Model             string        `mapstructure:"model" validate:"required"`
	MaxRetries        int           `mapstructure:"max-retries" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	SystemInstruction string        `mapstructure:"system-instruction"`
}

type MatchesConfig struct {
	PageSize int `mapstructure:"page-size" validate:"gte=0"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "commandjobs scrapes job boards and asks an AI model which listings fit your resume",
		Run: func(cmd *cobra.Command, _ []string) {
			menu(cmd)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is commandjobs.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("database", "", "path of the sqlite database")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("database"))
}

// setDefaults covers optional settings only. The resume file, the batch
// size, the model and the prompt texts have to be configured.
func setDefaults() {
	viper.SetDefault("database.driver", store.DriverSQLite)
	viper.SetDefault("database.path", store.DefaultPath)
	viper.SetDefault("log-file", app+".log")
	viper.SetDefault("sources.timeout", 10*time.Second)
	viper.SetDefault("sources.hacker-news.page-delay", 2*time.Second)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.max-retries", 1)
	viper.SetDefault("ai.gemini.timeout", 2*time.Minute)
	viper.SetDefault("matches.page-size", 10)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Settings may come from the environment alone, so a missing file in
	// the current directory is fine. An explicit or broken file is not.
	// Required settings are checked by getConfig.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

var validate = validator.New()

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// env is what every command needs: the config, a logger and the store.
type env struct {
	config *Config
	logger *zap.Logger
	store  store.Store
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// setup builds the environment of a command. Interactive commands log to
// the configured file instead of stdout.
func setup(ctx context.Context, interactive bool) *env {
	opts := logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")}
	if interactive {
		opts.OutputPaths = []string{viper.GetString("log-file")}
	}

	logger, err := logger.New(opts)
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting", zap.String("version", version), zap.String("config", viper.ConfigFileUsed()))

	s, err := store.Open(ctx, config.Database)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err), zap.String("driver", config.Database.Driver))
	}

	return &env{config: config, logger: logger, store: s}
}

func loadResume(config *Config) (string, error) {
	return secrets.Load(secrets.Source{
		Name: "resume",
		File: config.ResumeFile,
	})
}

func loadAPIKey(config *Config) (string, error) {
	key, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.AI.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return "", fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}
	return key, nil
}
