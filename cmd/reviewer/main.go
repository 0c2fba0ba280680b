package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/localreview/internal/ai"
	"github.com/seanblong/localreview/internal/catalog"
	"github.com/seanblong/localreview/internal/config"
	"github.com/seanblong/localreview/internal/coverage"
	"github.com/seanblong/localreview/internal/output"
	"github.com/seanblong/localreview/internal/review"
)

func main() {
	fs := pflag.NewFlagSet("localreview", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	systemPrompt := cfg.SystemPrompt
	if cfg.PromptFile != "" {
		b, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PromptFile).Msg("failed to read prompt file")
		}
		systemPrompt = strings.TrimSpace(string(b))
	}

	provider := strings.ToLower(cfg.Provider)
	log.Info().Str("provider", provider).Str("model", cfg.Model).Str("dir", cfg.CodeDir).Msg("starting review")

	var clientConfig *ai.ClientConfig
	switch provider {
	case "openai":
		clientConfig = &ai.ClientConfig{
			Provider: ai.ProviderOpenAI,
			APIURL:   cfg.APIURL,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		}
	case "gemini":
		clientConfig = &ai.ClientConfig{
			Provider:  ai.ProviderGemini,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			ProjectID: cfg.ProjectID,
			Location:  cfg.Location,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		}
	case "stub":
		clientConfig = &ai.ClientConfig{
			Provider: ai.ProviderStub,
		}
	default:
		log.Fatal().Str("provider", provider).Msg("unsupported provider")
	}

	client, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create review client")
	}

	cat := catalog.New(cfg.CodeDir, cfg.Exclude)

	var ledger *coverage.Ledger
	if cfg.Coverage {
		ledger, err = coverage.Open(cfg.CodeDir, gitCommit(cfg.CodeDir))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open coverage ledger")
		}
	}

	pipe := review.New(cat, client, ledger, review.Options{
		Focus:        cfg.ReviewFocus,
		Language:     cfg.Language,
		SystemPrompt: systemPrompt,

		ContextLength:    cfg.ContextLength,
		BatchThreshold:   cfg.BatchThresholdTokens,
		MaxFilesPerBatch: cfg.MaxFilesPerBatch,
		BatchFraction:    cfg.BatchContextFraction,

		OverviewMaxTokens: cfg.OverviewMaxTokens,
		OverviewMaxLines:  cfg.OverviewMaxLines,

		MaxCompletionTokens: cfg.MaxCompletionTokens,
		Temperature:         cfg.Temperature,

		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Workers: cfg.Workers,

		Progress: func(current, total int) {
			log.Info().Int("current", current).Int("total", total).Msg("work unit complete")
		},

		Model:  cfg.Model,
		APIURL: cfg.APIURL,
	})

	report, err := pipe.Run(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("review run failed")
	}

	if err := output.WriteJSON(cfg.OutputPath, report); err != nil {
		log.Fatal().Err(err).Msg("failed to write report")
	}

	fmt.Print(output.Summary(report))
	log.Info().Str("output", cfg.OutputPath).Msg("review complete")
}

// gitCommit returns the HEAD commit of dir, or "" when dir is not a git
// checkout. The coverage ledger keys records to it so reruns on the same
// commit accumulate coverage.
func gitCommit(dir string) string {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
