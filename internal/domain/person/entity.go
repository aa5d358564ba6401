package person

// Partition names the directory collection a person belongs to.
type Partition string

const (
	PartitionBarbers Partition = "barbers"
	PartitionWorkers Partition = "workers"
)

// LookupOrder is the order partitions are searched when resolving an
// external ID. The first match wins.
func LookupOrder() []Partition {
	return []Partition{PartitionBarbers, PartitionWorkers}
}

// Person is a staff member who may clock in at a device.
type Person struct {
	ID               string
	Partition        Partition
	ExternalID       string // cédula
	FullName         string
	Email            string
	PhoneNumber      string
	Role             string
	AuthorizedSites  []string
	AuthorizedBrands []string
}
