package person

import "context"

// Repository is read-only access to the staff directory.
type Repository interface {
	// FindByExternalID returns the first person in partition whose external ID
	// matches exactly, or ErrPersonNotFound.
	FindByExternalID(ctx context.Context, partition Partition, externalID string) (Person, error)

	// ListByPartition returns every person in partition, used for device sync.
	ListByPartition(ctx context.Context, partition Partition) ([]Person, error)
}
