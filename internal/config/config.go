package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider      string `yaml:"provider"`
	APIURL        string `yaml:"apiURL" envconfig:"API_URL"`
	APIKey        string `yaml:"apiKey" envconfig:"API_KEY"`
	Model         string `yaml:"model"`
	ContextLength int    `yaml:"contextLength" split_words:"true"`
	ProjectID     string `yaml:"projectID" envconfig:"PROJECT_ID"`
	Location      string `yaml:"location"`

	CodeDir    string   `yaml:"codeDir" split_words:"true"`
	OutputPath string   `yaml:"outputPath" split_words:"true"`
	Exclude    []string `yaml:"exclude"`

	ReviewFocus  []string `yaml:"reviewFocus" split_words:"true"`
	Language     string   `yaml:"language"`
	SystemPrompt string   `yaml:"systemPrompt" split_words:"true"`
	PromptFile   string   `yaml:"promptFile" split_words:"true"`

	BatchThresholdTokens int     `yaml:"batchThresholdTokens" split_words:"true"`
	MaxFilesPerBatch     int     `yaml:"maxFilesPerBatch" split_words:"true"`
	BatchContextFraction float64 `yaml:"batchContextFraction" split_words:"true"`
	OverviewMaxTokens    int     `yaml:"overviewMaxTokens" split_words:"true"`
	OverviewMaxLines     int     `yaml:"overviewMaxLines" split_words:"true"`

	MaxCompletionTokens int     `yaml:"maxCompletionTokens" split_words:"true"`
	Temperature         float64 `yaml:"temperature"`

	TimeoutSeconds int  `yaml:"timeoutSeconds" split_words:"true"`
	Workers        int  `yaml:"workers"`
	Coverage       bool `yaml:"coverage"`

	LogLevel string `yaml:"logLevel" split_words:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

const envPrefix = "LOCALREVIEW"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/localreview.yaml",
				"config/config.yaml",
				"./localreview.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if err := validate(&cfg); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func validate(c *Specification) error {
	if strings.TrimSpace(c.APIURL) == "" && c.Provider == "openai" {
		return fmt.Errorf("LOCALREVIEW_API_URL is required (env/file/flag)")
	}
	if c.ContextLength <= 0 {
		return fmt.Errorf("context length must be positive, got %d", c.ContextLength)
	}
	if c.BatchContextFraction <= 0 || c.BatchContextFraction > 1 {
		return fmt.Errorf("batch context fraction must be in (0, 1], got %g", c.BatchContextFraction)
	}
	if c.Language != "en" && c.Language != "ja" {
		return fmt.Errorf("language must be en or ja, got %q", c.Language)
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	return nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Review backend (openai, gemini, stub)")
	fs.String("api-url", c.APIURL, "Base URL of the OpenAI-compatible endpoint")
	fs.String("api-key", c.APIKey, "API key, if the endpoint requires one")
	fs.String("model", c.Model, "Model identifier")
	fs.Int("context-length", c.ContextLength, "Model context length in tokens")
	fs.String("project-id", c.ProjectID, "Cloud project ID (gemini provider)")
	fs.String("location", c.Location, "Cloud region (gemini provider)")

	fs.String("code-dir", c.CodeDir, "Directory to review")
	fs.String("output", c.OutputPath, "Output report path")
	fs.StringSlice("exclude", c.Exclude, "Glob patterns to exclude (repeatable)")

	fs.StringSlice("review-focus", c.ReviewFocus, "Review focus areas (repeatable)")
	fs.String("language", c.Language, "Output language (en|ja)")
	fs.String("system-prompt", c.SystemPrompt, "Custom system prompt")
	fs.String("prompt-file", c.PromptFile, "Path to a file holding the system prompt")

	fs.Int("batch-threshold-tokens", c.BatchThresholdTokens, "Files below this token estimate are batched")
	fs.Int("max-files-per-batch", c.MaxFilesPerBatch, "Maximum files per batch")
	fs.Float64("batch-context-fraction", c.BatchContextFraction, "Fraction of the context length a batch may fill")
	fs.Int("overview-max-tokens", c.OverviewMaxTokens, "Token cap for the shared repository overview (0 disables)")
	fs.Int("overview-max-lines", c.OverviewMaxLines, "Lines excerpted per file for the overview")

	fs.Int("max-completion-tokens", c.MaxCompletionTokens, "Completion token cap per request")
	fs.Float64("temperature", c.Temperature, "Sampling temperature")

	fs.Int("timeout-seconds", c.TimeoutSeconds, "Per-request timeout in seconds")
	fs.Int("workers", c.Workers, "Concurrent review requests")
	fs.Bool("coverage", c.Coverage, "Track review coverage in <code-dir>/coverage")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setSlice := func(name string, dst *[]string) {
		if fs.Changed(name) {
			v, _ := fs.GetStringSlice(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("api-url", &c.APIURL)
	setStr("api-key", &c.APIKey)
	setStr("model", &c.Model)
	setInt("context-length", &c.ContextLength)
	setStr("project-id", &c.ProjectID)
	setStr("location", &c.Location)

	setStr("code-dir", &c.CodeDir)
	setStr("output", &c.OutputPath)
	setSlice("exclude", &c.Exclude)

	setSlice("review-focus", &c.ReviewFocus)
	setStr("language", &c.Language)
	setStr("system-prompt", &c.SystemPrompt)
	setStr("prompt-file", &c.PromptFile)

	setInt("batch-threshold-tokens", &c.BatchThresholdTokens)
	setInt("max-files-per-batch", &c.MaxFilesPerBatch)
	setFloat("batch-context-fraction", &c.BatchContextFraction)
	setInt("overview-max-tokens", &c.OverviewMaxTokens)
	setInt("overview-max-lines", &c.OverviewMaxLines)

	setInt("max-completion-tokens", &c.MaxCompletionTokens)
	setFloat("temperature", &c.Temperature)

	setInt("timeout-seconds", &c.TimeoutSeconds)
	setInt("workers", &c.Workers)
	setBool("coverage", &c.Coverage)

	setStr("log-level", &c.LogLevel)
}

func setDefaults(c *Specification) {
	c.Provider = "openai"
	c.APIURL = "http://localhost:1234/v1"
	c.Model = "qwen/qwen3-coder-30b"
	c.ContextLength = 262144
	c.Location = "us-central1"

	c.CodeDir = "."
	c.OutputPath = "review-results.json"
	c.Exclude = []string{
		"*.pyc",
		"*.pyo",
		"__pycache__/*",
		".svn/*",
		".git/*",
		"build/*",
		"install/*",
		"log/*",
	}

	c.ReviewFocus = []string{"bugs", "performance", "maintainability"}
	c.Language = "en"

	c.BatchThresholdTokens = 10000
	c.MaxFilesPerBatch = 5
	c.BatchContextFraction = 0.3
	c.OverviewMaxTokens = 4000
	c.OverviewMaxLines = 40

	c.MaxCompletionTokens = 2000
	c.Temperature = 0.1

	c.TimeoutSeconds = 300
	c.Workers = 1

	c.LogLevel = "info"
}
