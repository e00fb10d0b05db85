// Command seedfields creates field definitions described in a YAML file.
//
//	seedfields -file fields.yaml
//
// Params are validated by the field type handlers exactly as through the API.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"marketplace-service/internal/config"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/logging"
	"marketplace-service/internal/store"
	"marketplace-service/internal/validation"
)

type seedFile struct {
	Fields []seedField `yaml:"fields"`
}

type seedField struct {
	ModelID    string         `yaml:"model_id"`
	Title      string         `yaml:"title"`
	Type       string         `yaml:"type"`
	Section    string         `yaml:"section"`
	Params     map[string]any `yaml:"params"`
	Filterable bool           `yaml:"filterable"`
	Order      int            `yaml:"order"`
	Required   bool           `yaml:"required"`
}

func parseSeedFile(r io.Reader) ([]domain.FieldDefinition, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	defs := make([]domain.FieldDefinition, 0, len(file.Fields))
	for i, f := range file.Fields {
		if f.ModelID == "" || f.Title == "" || f.Type == "" {
			return nil, fmt.Errorf("fields[%d]: model_id, title and type are required", i)
		}
		params := f.Params
		if params == nil {
			params = map[string]any{}
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("fields[%d]: params: %w", i, err)
		}
		defs = append(defs, domain.FieldDefinition{
			ModelID:    f.ModelID,
			Title:      f.Title,
			Type:       domain.FieldType(f.Type),
			Section:    f.Section,
			Params:     raw,
			Filterable: f.Filterable,
			Order:      f.Order,
			Required:   f.Required,
		})
	}
	return defs, nil
}

// fieldCreator is satisfied by *fields.DefinitionService.
type fieldCreator interface {
	Create(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error)
}

// seed creates every definition, stopping at the first failure.
func seed(ctx context.Context, svc fieldCreator, defs []domain.FieldDefinition, out io.Writer) error {
	for i := range defs {
		created, err := svc.Create(ctx, &defs[i])
		if err != nil {
			if ve, ok := validation.AsError(err); ok {
				return fmt.Errorf("fields[%d] %q: %v", i, defs[i].Title, ve.Messages())
			}
			return fmt.Errorf("fields[%d] %q: %w", i, defs[i].Title, err)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", created.ID, created.Type, created.Title)
	}
	return nil
}

func main() {
	path := flag.String("file", "fields.yaml", "YAML file listing field definitions")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Error loading configuration", "err", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	f, err := os.Open(*path)
	if err != nil {
		slog.Error("Failed to open seed file", "path", *path, "err", err)
		os.Exit(1)
	}
	defs, err := parseSeedFile(f)
	f.Close()
	if err != nil {
		slog.Error("Invalid seed file", "path", *path, "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		slog.Error("Failed to initialize database connection", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Field definitions are never cached here; cached model lists expire by TTL.
	svc := fields.NewDefinitionService(store.NewPostgresStore(db), fields.NewDefaultRegistry(db, fields.PhotoOptions{}), nil)
	if err := seed(ctx, svc, defs, os.Stdout); err != nil {
		slog.Error("Seeding failed", "err", err)
		os.Exit(1)
	}
	slog.Info("Seeding finished", "created", len(defs))
}
