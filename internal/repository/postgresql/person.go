package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type personRepository struct {
	db *database.DB
}

// NewPersonRepository creates a read-only staff directory repository
func NewPersonRepository(db *database.DB) person.Repository {
	return &personRepository{db: db}
}

const personColumns = `id, partition, external_id, full_name, email, phone_number, role, authorized_sites, authorized_brands`

func scanPerson(row pgx.Row) (person.Person, error) {
	var p person.Person
	var partition string
	if err := row.Scan(
		&p.ID,
		&partition,
		&p.ExternalID,
		&p.FullName,
		&p.Email,
		&p.PhoneNumber,
		&p.Role,
		&p.AuthorizedSites,
		&p.AuthorizedBrands,
	); err != nil {
		return person.Person{}, err
	}
	p.Partition = person.Partition(partition)
	return p, nil
}

// FindByExternalID returns the first person in partition with this external ID
func (r *personRepository) FindByExternalID(ctx context.Context, partition person.Partition, externalID string) (person.Person, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + personColumns + `
		FROM persons
		WHERE partition = $1 AND external_id = $2
		ORDER BY created_at ASC
		LIMIT 1`

	p, err := scanPerson(q.QueryRow(ctx, query, string(partition), externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return person.Person{}, person.ErrPersonNotFound
		}
		return person.Person{}, fmt.Errorf("failed to find person in %s: %w", partition, err)
	}
	return p, nil
}

// ListByPartition returns every person in partition
func (r *personRepository) ListByPartition(ctx context.Context, partition person.Partition) ([]person.Person, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + personColumns + `
		FROM persons
		WHERE partition = $1
		ORDER BY external_id ASC`

	rows, err := q.Query(ctx, query, string(partition))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", partition, err)
	}
	defer rows.Close()

	people := make([]person.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate persons: %w", err)
	}
	return people, nil
}
