package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/riverbedai/riverbed"
	"github.com/riverbedai/riverbed/internal/logging"
	"github.com/riverbedai/riverbed/pkg/adapters/file"
	"github.com/riverbedai/riverbed/pkg/adapters/openai"
	"github.com/riverbedai/riverbed/pkg/adapters/process"
	redisadapter "github.com/riverbedai/riverbed/pkg/adapters/redis"
	"github.com/riverbedai/riverbed/pkg/observability"
	"github.com/riverbedai/riverbed/pkg/ports"

	"github.com/prometheus/client_golang/prometheus"
)

// buildEngine assembles an Engine from command flags. Persistence picks,
// in order: redis, file data dir, in-memory.
func buildEngine(cmd *cobra.Command) (*riverbed.Engine, *prometheus.Registry, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	graphPath, _ := cmd.Flags().GetString("graph")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	redisAddr, _ := cmd.Flags().GetString("redis")
	skillsPath, _ := cmd.Flags().GetString("skills")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(level)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	completerOpts := []openai.Option{openai.WithLogger(logger)}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		completerOpts = append(completerOpts, openai.WithModel(model))
	}
	completer := openai.New(apiKey, completerOpts...)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	opts := []riverbed.Option{
		riverbed.WithLogger(logger),
		riverbed.WithMetrics(metrics),
	}

	if skillsPath != "" {
		skills, err := process.LoadSkills(skillsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading skills: %w", err)
		}
		opts = append(opts, riverbed.WithSkillRunner(process.NewRunner(process.WithSkills(skills))))
	}

	switch {
	case redisAddr != "":
		client := backend.NewClient(&backend.Options{Addr: redisAddr})
		opts = append(opts,
			riverbed.WithRunStore(redisadapter.NewFromClient(client)),
			riverbed.WithLocker(redisadapter.NewLocker(client, "riverbed:")),
			riverbed.WithFactLog(redisadapter.NewFactLog(client, "")),
		)
	case dataDir != "":
		store, err := file.NewStore(dataDir)
		if err != nil {
			return nil, nil, err
		}
		facts, err := file.NewFactLog(dataDir + "/facts.jsonl")
		if err != nil {
			return nil, nil, err
		}
		archive, err := file.NewArchive(dataDir)
		if err != nil {
			return nil, nil, err
		}
		proposals, err := file.NewProposalStore(dataDir + "/proposals.json")
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts,
			riverbed.WithRunStore(store),
			riverbed.WithFactLog(facts),
			riverbed.WithArchive(archive),
			riverbed.WithProposalStore(proposals),
		)
	}

	var source ports.GraphSource = file.NewGraphSource(graphPath)

	eng, err := riverbed.New(ctx, source, completer, opts...)
	if err != nil {
		return nil, nil, err
	}
	return eng, reg, nil
}
