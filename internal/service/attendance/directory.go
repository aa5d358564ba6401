package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
)

// Directory resolves a cedula to a staff member across the directory
// partitions in lookup order.
type Directory struct {
	people person.Repository
}

func NewDirectory(people person.Repository) *Directory {
	return &Directory{people: people}
}

// FindByExternalID returns Found=false when no partition holds the ID.
// Only store failures are returned as errors.
func (d *Directory) FindByExternalID(ctx context.Context, externalID string) (attendance.LookupResult, error) {
	for _, partition := range person.LookupOrder() {
		p, err := d.people.FindByExternalID(ctx, partition, externalID)
		if err == nil {
			p.Partition = partition
			return attendance.LookupResult{Found: true, Person: p}, nil
		}
		if !errors.Is(err, person.ErrPersonNotFound) {
			return attendance.LookupResult{}, fmt.Errorf("lookup %s in %s: %w", externalID, partition, err)
		}
	}
	return attendance.LookupResult{Found: false}, nil
}
