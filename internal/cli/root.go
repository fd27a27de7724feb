package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/boardharvest/internal/logging"
	"github.com/ppiankov/boardharvest/internal/model"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "v0.3.0"

var (
	cfgFile string
	verbose bool
)

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"api-key":          "api.key",
	"listing-url":      "api.listing_url",
	"detail-url":       "api.detail_url",
	"backend":          "store.backend",
	"store-dir":        "store.dir",
	"sqlite-path":      "store.sqlite_path",
	"parallel":         "harvest.parallel",
	"threshold":        "harvest.stop_threshold",
	"old-prefix":       "harvest.old_prefix",
	"old-before":       "harvest.old_before",
	"checkpoint-pages": "harvest.checkpoint_pages",
	"workers":          "enrich.workers",
	"checkpoint-every": "enrich.checkpoint_every",
	"detail-timeout":   "enrich.timeout",
	"rps":              "http.requests_per_second",
	"http-proxy":       "http.http_proxy",
	"https-proxy":      "http.https_proxy",
	"insecure":         "http.insecure_tls",
	"respect-robots":   "http.respect_robots",
	"cache":            "cache.enabled",
	"cache-dir":        "cache.dir",
	"log-format":       "log.format",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "boardharvest",
	Short: "boardharvest - incremental board listing harvester",
	Long: `boardharvest pages through the listing of one or more boards, stores every
item it has not seen before, and then enriches stored items with their
per-item detail data (comment counts, reactions, body text).

Both stages are incremental and safe to interrupt: progress is checkpointed
to the record store, and rerunning a stage never duplicates or refetches work.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd)
	},
}

// Execute runs the root command with ctx, which is cancelled on SIGINT/SIGTERM
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "boardharvest %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.boardharvest/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults(viper.GetViper(), model.DefaultConfig())

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".boardharvest"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match BOARDHARVEST_*, e.g. BOARDHARVEST_API_KEY
	viper.SetEnvPrefix("BOARDHARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
		fmt.Fprintf(os.Stderr, "Warning: reading config: %v\n", err)
	}
}

// setDefaults registers every key of cfg so env variables can override nested keys
func setDefaults(v *viper.Viper, cfg *model.Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, val := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			// a configured field set replaces the default one; missing keys mean exclude
			if key == "fields" {
				continue
			}
			if child, ok := val.(map[string]any); ok {
				walk(key, child)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
}

// bindFlags binds the flags of the executing command to their config keys
func bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = viper.BindPFlag(key, f)
	})
	return bindErr
}

// loadConfig builds the effective configuration (flags > env > file > defaults)
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	// field sets decode into fresh maps; defaults apply only when none is configured
	cfg.Fields = model.FieldsConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Fields.Post) == 0 {
		cfg.Fields.Post = model.DefaultPostFields()
	}
	if len(cfg.Fields.Comment) == 0 {
		cfg.Fields.Comment = model.DefaultCommentFields()
	}
	cfg.Fields.Post = cfg.Fields.Post.Canonical(model.PostFieldNames...)
	cfg.Fields.Comment = cfg.Fields.Comment.Canonical(model.CommentFieldNames...)
	if v.GetBool("verbose") {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration and builds the logger shared by a command
func setup() (*model.Config, *slog.Logger, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}
