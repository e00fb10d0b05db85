package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-service/internal/domain"
)

const fieldColumns = `id, model_id, title, type, section, params, filterable, sort_order, required, created_at, updated_at`

func scanField(row rowScanner, f *domain.FieldDefinition) error {
	var params []byte
	if err := row.Scan(
		&f.ID, &f.ModelID, &f.Title, &f.Type, &f.Section, &params,
		&f.Filterable, &f.Order, &f.Required, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return err
	}
	if len(params) > 0 {
		f.Params = json.RawMessage(params)
	} else {
		f.Params = json.RawMessage(`{}`)
	}
	return nil
}

func paramsArg(p json.RawMessage) []byte {
	if len(p) == 0 {
		return []byte(`{}`)
	}
	return p
}

// --- FieldStorer Implementation ---

func (s *PostgresStore) CreateField(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error) {
	query := `
		INSERT INTO marketplace.field_definitions (model_id, title, type, section, params, filterable, sort_order, required)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + fieldColumns + `;
	`
	row := conn(ctx, s.db).QueryRowContext(ctx, query,
		field.ModelID, field.Title, field.Type, field.Section, paramsArg(field.Params),
		field.Filterable, field.Order, field.Required,
	)
	var created domain.FieldDefinition
	if err := scanField(row, &created); err != nil {
		if pqCode(err) == pqInvalidTextRepresentation {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("store: CreateField failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetFieldByID(ctx context.Context, id string) (*domain.FieldDefinition, error) {
	query := `
		SELECT ` + fieldColumns + `
		FROM marketplace.field_definitions
		WHERE id = $1;
	`
	var field domain.FieldDefinition
	if err := scanField(conn(ctx, s.db).QueryRowContext(ctx, query, id), &field); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepresentation {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("store: GetFieldByID failed to scan row: %w", err)
	}
	return &field, nil
}

func (s *PostgresStore) ListFieldsByModel(ctx context.Context, modelID string) ([]domain.FieldDefinition, error) {
	query := `
		SELECT ` + fieldColumns + `
		FROM marketplace.field_definitions
		WHERE model_id = $1
		ORDER BY sort_order ASC, created_at ASC;
	`
	rows, err := conn(ctx, s.db).QueryContext(ctx, query, modelID)
	if err != nil {
		if pqCode(err) == pqInvalidTextRepresentation {
			return []domain.FieldDefinition{}, nil
		}
		return nil, fmt.Errorf("store: ListFieldsByModel failed to query fields: %w", err)
	}
	defer rows.Close()

	fields := []domain.FieldDefinition{}
	for rows.Next() {
		var f domain.FieldDefinition
		if err := scanField(rows, &f); err != nil {
			return nil, fmt.Errorf("store: ListFieldsByModel failed to scan field row: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListFieldsByModel iteration error: %w", err)
	}
	return fields, nil
}

// UpdateField rewrites every mutable column. The type column is left alone:
// changing it would orphan values already stored under the old type.
func (s *PostgresStore) UpdateField(ctx context.Context, field *domain.FieldDefinition) (*domain.FieldDefinition, error) {
	query := `
		UPDATE marketplace.field_definitions
		SET title = $1, section = $2, params = $3, filterable = $4, sort_order = $5, required = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $7
		RETURNING ` + fieldColumns + `;
	`
	row := conn(ctx, s.db).QueryRowContext(ctx, query,
		field.Title, field.Section, paramsArg(field.Params), field.Filterable, field.Order, field.Required, field.ID,
	)
	var updated domain.FieldDefinition
	if err := scanField(row, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("store: UpdateField failed to scan row: %w", err)
	}
	return &updated, nil
}

func (s *PostgresStore) DeleteField(ctx context.Context, id string) error {
	query := `DELETE FROM marketplace.field_definitions WHERE id = $1;`
	result, err := conn(ctx, s.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: DeleteField failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteField failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrFieldNotFound
	}
	return nil
}
