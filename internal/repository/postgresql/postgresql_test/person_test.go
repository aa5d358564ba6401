package postgresql_test

import (
	"context"
	"testing"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/repository/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonRepository_FindByExternalID(t *testing.T) {
	db := newTestDB(t)
	repo := postgresql.NewPersonRepository(db)
	ctx := context.Background()

	barberID := insertPerson(t, db, "barbers", "1009", "Ana Torres", []string{"site-a"}, []string{"brand-1"})
	insertPerson(t, db, "workers", "2001", "Luis Paz", []string{"site-a"}, []string{"brand-1"})

	t.Run("found in partition", func(t *testing.T) {
		p, err := repo.FindByExternalID(ctx, person.PartitionBarbers, "1009")
		require.NoError(t, err)
		assert.Equal(t, barberID, p.ID)
		assert.Equal(t, person.PartitionBarbers, p.Partition)
		assert.Equal(t, "Ana Torres", p.FullName)
		assert.Equal(t, []string{"site-a"}, p.AuthorizedSites)
		assert.Equal(t, []string{"brand-1"}, p.AuthorizedBrands)
	})

	t.Run("wrong partition", func(t *testing.T) {
		_, err := repo.FindByExternalID(ctx, person.PartitionWorkers, "1009")
		assert.ErrorIs(t, err, person.ErrPersonNotFound)
	})

	t.Run("exact match only", func(t *testing.T) {
		_, err := repo.FindByExternalID(ctx, person.PartitionBarbers, "100")
		assert.ErrorIs(t, err, person.ErrPersonNotFound)
	})
}

func TestPersonRepository_ListByPartition(t *testing.T) {
	db := newTestDB(t)
	repo := postgresql.NewPersonRepository(db)

	insertPerson(t, db, "barbers", "1010", "B", []string{}, []string{})
	insertPerson(t, db, "barbers", "1009", "A", []string{}, []string{})
	insertPerson(t, db, "workers", "2001", "W", []string{}, []string{})

	people, err := repo.ListByPartition(context.Background(), person.PartitionBarbers)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "1009", people[0].ExternalID)
	assert.Equal(t, "1010", people[1].ExternalID)
}
