package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/keylock"
	"github.com/google/uuid"
)

var errStoreDown = errors.New("store unavailable")

type memPeople struct {
	mu          sync.Mutex
	byPartition map[person.Partition][]person.Person
	err         error
	calls       []person.Partition
}

func newMemPeople(people ...person.Person) *memPeople {
	m := &memPeople{byPartition: map[person.Partition][]person.Person{}}
	for _, p := range people {
		m.byPartition[p.Partition] = append(m.byPartition[p.Partition], p)
	}
	return m
}

func (m *memPeople) FindByExternalID(ctx context.Context, partition person.Partition, externalID string) (person.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, partition)
	if m.err != nil {
		return person.Person{}, m.err
	}
	for _, p := range m.byPartition[partition] {
		if p.ExternalID == externalID {
			return p, nil
		}
	}
	return person.Person{}, person.ErrPersonNotFound
}

func (m *memPeople) ListByPartition(ctx context.Context, partition person.Partition) ([]person.Person, error) {
	return m.byPartition[partition], nil
}

type memRecords struct {
	mu         sync.Mutex
	records    []attendance.Record
	createErr  error
	convertErr error
}

func (m *memRecords) Create(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return attendance.Record{}, m.createErr
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now()
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memRecords) latest(match func(attendance.Record) bool) *attendance.Record {
	var best *attendance.Record
	for i := range m.records {
		rec := m.records[i]
		if !match(rec) {
			continue
		}
		if best == nil || !rec.Timestamp.Before(best.Timestamp) {
			copied := rec
			best = &copied
		}
	}
	return best
}

func (m *memRecords) GetLatestByPerson(ctx context.Context, personID string) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(func(r attendance.Record) bool { return r.PersonID == personID }), nil
}

func (m *memRecords) GetLatestByPersonBetween(ctx context.Context, personID string, start, end time.Time) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(func(r attendance.Record) bool {
		return r.PersonID == personID && !r.Timestamp.Before(start) && !r.Timestamp.After(end)
	}), nil
}

func (m *memRecords) ListBetween(ctx context.Context, start, end time.Time) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []attendance.Record{}
	for _, r := range m.records {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memRecords) List(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eq := func(want *string, got string) bool { return want == nil || *want == "" || *want == got }
	out := []attendance.Record{}
	for _, r := range m.records {
		if !eq(filter.PersonID, r.PersonID) || !eq(filter.ExternalID, r.ExternalID) ||
			!eq(filter.EventType, string(r.EventType)) || !eq(filter.Partition, string(r.Partition)) ||
			!eq(filter.Site, r.Site) || !eq(filter.Brand, r.Brand) {
			continue
		}
		if filter.From != nil && r.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && r.Timestamp.After(*filter.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memRecords) ApplyConversions(ctx context.Context, conversions []attendance.Conversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.convertErr != nil {
		return m.convertErr
	}

	index := map[string]int{}
	for i, r := range m.records {
		index[r.ID] = i
	}
	for _, c := range conversions {
		i, ok := index[c.RecordID]
		if !ok || m.records[i].EventType != attendance.CheckIn || m.records[i].AutoConverted {
			return fmt.Errorf("convert %s: %w", c.RecordID, attendance.ErrRecordNotFound)
		}
	}
	for _, c := range conversions {
		rec := &m.records[index[c.RecordID]]
		original := rec.EventType
		note := c.Note
		total := c.TotalDayEvents
		convertedAt := c.ConvertedAt
		rec.EventType = attendance.CheckOut
		rec.AutoConverted = true
		rec.OriginalEventType = &original
		rec.ConversionNote = &note
		rec.TotalDayEvents = &total
		rec.ConvertedAt = &convertedAt
	}
	return nil
}

func (m *memRecords) forPerson(personID string) []attendance.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []attendance.Record{}
	for _, r := range m.records {
		if r.PersonID == personID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

type published struct {
	Event    notification.EventName
	PersonID *string
	Data     map[string]interface{}
}

type memPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *memPublisher) Publish(ctx context.Context, event notification.EventName, personID *string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Event: event, PersonID: personID, Data: data})
	return p.err
}

func (p *memPublisher) names() []notification.EventName {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notification.EventName, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event
	}
	return out
}

func (p *memPublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type memEvidence struct {
	stored []attendance.Evidence
}

func (e *memEvidence) StoreEvidence(ctx context.Context, personID string, at time.Time, ev attendance.Evidence) (string, error) {
	e.stored = append(e.stored, ev)
	return "attendance/" + personID + ".jpg", nil
}

func (e *memEvidence) EvidenceURL(path string) string {
	return "http://evidence.local/" + path
}

type memAlerter struct {
	sent chan string
}

func (a *memAlerter) SendUnauthorizedAccessAlert(ctx context.Context, p person.Person, site, brand string, at time.Time, reasons []string) error {
	a.sent <- p.ID
	return nil
}

const (
	testSite  = "salon-norte"
	testBrand = "brand-1"
)

var testZone = businesstime.Default()

func barber1009() person.Person {
	return person.Person{
		ID:               "barber-1009",
		Partition:        person.PartitionBarbers,
		ExternalID:       "1009",
		FullName:         "Ana Torres",
		Email:            "ana@example.com",
		AuthorizedSites:  []string{testSite},
		AuthorizedBrands: []string{testBrand},
	}
}

type fixture struct {
	people    *memPeople
	records   *memRecords
	publisher *memPublisher
	locker    *keylock.Memory
	svc       *IngestionServiceImpl
}

func newFixture(opts ...IngestOption) *fixture {
	f := &fixture{
		people:    newMemPeople(barber1009()),
		records:   &memRecords{},
		publisher: &memPublisher{},
		locker:    keylock.NewMemory(),
	}
	f.svc = NewIngestionService(f.people, f.records, f.publisher, f.locker, testZone, IngestConfig{
		Cooldown:      30 * time.Second,
		MinExternalID: 1000,
		Site:          testSite,
		Brand:         testBrand,
	}, opts...)
	return f
}

func event(externalID, ts string) attendance.RawDeviceEvent {
	return attendance.RawDeviceEvent{
		ExternalID: externalID,
		Method:     "fingerPrint",
		Timestamp:  ts,
		DeviceID:   "192.168.1.25",
	}
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
