// Command seed loads the starter prompt set into an empty database.
//
// Usage:
//
//	go run ./cmd/seed [-config configs/development.yaml] [-force]
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/store"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/validator"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
)

//go:embed starter.yaml
var starterYAML []byte

type starter struct {
	Title    string   `yaml:"title"`
	Body     string   `yaml:"body"`
	Category string   `yaml:"category"`
	Tags     []string `yaml:"tags"`
	Copies   int      `yaml:"copies"`
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	force := flag.Bool("force", false, "seed even when prompts already exist")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(context.Background(), cfg, *force); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, force bool) error {
	prompts, err := loadStarters(starterYAML)
	if err != nil {
		return err
	}

	db, err := postgres.Connect(ctx, cfg.Postgres, 5)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	s := store.New(db)
	existing, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if existing > 0 && !force {
		slog.Info("prompts already present, nothing to seed", "count", existing)
		return nil
	}

	n, err := s.Import(ctx, prompts)
	if err != nil {
		return err
	}
	slog.Info("seeded starter prompts", "count", n)
	return nil
}

// loadStarters parses and validates the embedded starter set.
func loadStarters(data []byte) ([]*prompt.Prompt, error) {
	var starters []starter
	if err := yaml.Unmarshal(data, &starters); err != nil {
		return nil, fmt.Errorf("parsing starter prompts: %w", err)
	}
	out := make([]*prompt.Prompt, 0, len(starters))
	for _, st := range starters {
		req := &prompt.CreateRequest{Title: st.Title, Body: st.Body, Category: st.Category, Tags: st.Tags}
		if err := validator.ValidateCreate(req); err != nil {
			return nil, fmt.Errorf("starter %q: %w", st.Title, err)
		}
		out = append(out, &prompt.Prompt{
			Title:    req.Title,
			Body:     req.Body,
			Category: req.Category,
			Tags:     req.Tags,
			IsPublic: true,
			Copies:   st.Copies,
		})
	}
	return out, nil
}
