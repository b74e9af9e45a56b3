package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists profiles in PostgreSQL.
// Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a profile store backed by pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

const profileColumns = `id, name, age_at_creation, sex, race, religion,
	allergies, conditions, meat_choice, food_exclusions, created_at`

// Upsert creates p or fully replaces an existing profile with the same id.
// This is the form path: the caller supplies the complete attribute set.
// Sex is normalized before the write; age and creation time are only set
// on insert.
func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	p.Sex = NormalizeSex(p.Sex)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, name, age_at_creation, sex, race, religion,
			allergies, conditions, meat_choice, food_exclusions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			sex = excluded.sex,
			race = excluded.race,
			religion = excluded.religion,
			allergies = excluded.allergies,
			conditions = excluded.conditions,
			meat_choice = excluded.meat_choice,
			food_exclusions = excluded.food_exclusions`,
		p.ID, p.Name, p.AgeAtCreation, p.Sex, p.Race, p.Religion,
		p.Allergies, p.Conditions, p.MeatChoice, p.FoodExclusions)
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", p.ID, err)
	}

	s.logger.Debug("upserted profile", "id", p.ID, "name", p.Name)
	return nil
}

// Get retrieves a profile by id. Returns ErrNotFound if none exists.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting profile %s: %w", id, err)
	}
	return p, nil
}

// List returns all profiles, newest first.
func (s *Store) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// UpdateField writes a single field value. The field name is validated
// against the updatable-column whitelist before any SQL is built.
func (s *Store) UpdateField(ctx context.Context, id uuid.UUID, f Field, value string) error {
	col, err := f.Column()
	if err != nil {
		return err
	}

	// col comes from the whitelist in columns, never from user input.
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE profiles SET %s = $1 WHERE id = $2`, col), value, id)
	if err != nil {
		return fmt.Errorf("updating profile %s field %s: %w", id, f, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated profile field", "id", id, "field", f)
	return nil
}

// Delete removes a profile. Chat sessions, test results, and index vectors
// cascade at the schema level.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted profile", "id", id)
	return nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.AgeAtCreation, &p.Sex, &p.Race,
		&p.Religion, &p.Allergies, &p.Conditions, &p.MeatChoice,
		&p.FoodExclusions, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
