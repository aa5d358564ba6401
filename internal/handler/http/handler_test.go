package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/config"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/device"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/metrics"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/storage"
	authService "github.com/cmlabs-hris/biometric-attendance/internal/service/auth"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	handlerTestSecret   = "test-secret-key-for-jwt"
	handlerTestPassword = "password123"
)

// ===== FAKES =====

type recordingIngest struct {
	mu     sync.Mutex
	events []attendance.RawDeviceEvent
	opts   []attendance.IngestOptions
	err    error
}

func (r *recordingIngest) Ingest(ctx context.Context, raw attendance.RawDeviceEvent, opts attendance.IngestOptions) (attendance.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, raw)
	r.opts = append(r.opts, opts)
	if r.err != nil {
		return attendance.IngestResult{}, r.err
	}
	return attendance.IngestResult{Outcome: attendance.OutcomeRecorded, EventType: attendance.CheckIn}, nil
}

type fakeQuery struct {
	lastFilter attendance.RecordFilter
	personID   string
	err        error
}

func (q *fakeQuery) ListRecords(ctx context.Context, filter attendance.RecordFilter) (attendance.ListRecordsResponse, error) {
	q.lastFilter = filter
	if q.err != nil {
		return attendance.ListRecordsResponse{}, q.err
	}
	if err := filter.Validate(); err != nil {
		return attendance.ListRecordsResponse{}, err
	}
	return attendance.ListRecordsResponse{
		Count:   1,
		Records: []attendance.RecordResponse{{ID: "r1", ExternalID: "1009", EventType: "check_in"}},
	}, nil
}

func (q *fakeQuery) GetToday(ctx context.Context, personID string) (attendance.TodayResponse, error) {
	q.personID = personID
	return attendance.TodayResponse{PersonID: personID, Day: "2025-03-11", Records: []attendance.RecordResponse{}}, q.err
}

func (q *fakeQuery) GetTodaySummary(ctx context.Context) (attendance.SummaryResponse, error) {
	return attendance.SummaryResponse{
		Day:     "2025-03-11",
		Summary: attendance.DailySummary{TotalRecords: 3, TotalCheckIns: 2, TotalCheckOuts: 1, CurrentlyPresent: 1},
		Records: []attendance.RecordResponse{},
	}, q.err
}

type fakeReconciler struct {
	day      time.Time
	previous bool
	err      error
}

func (f *fakeReconciler) ReconcileDay(ctx context.Context, dayStart time.Time) (attendance.ReconcileReport, error) {
	f.day = dayStart
	return attendance.ReconcileReport{Day: dayStart.Format("2006-01-02"), Converted: 1, ConvertedIDs: []string{"r3"}}, f.err
}

func (f *fakeReconciler) ReconcilePreviousDay(ctx context.Context) (attendance.ReconcileReport, error) {
	f.previous = true
	return attendance.ReconcileReport{Day: "2025-03-10", ConvertedIDs: []string{}}, f.err
}

type fakeNotifications struct {
	events chan notification.SSEEvent
	mu     sync.Mutex
	subs   []string
	limit  int
}

func (f *fakeNotifications) Publish(ctx context.Context, event notification.EventName, personID *string, data map[string]interface{}) error {
	return nil
}

func (f *fakeNotifications) Subscribe(ctx context.Context, channel string) (<-chan notification.SSEEvent, func()) {
	f.mu.Lock()
	f.subs = append(f.subs, channel)
	f.mu.Unlock()
	return f.events, func() {}
}

func (f *fakeNotifications) subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subs...)
}

func (f *fakeNotifications) Recent(ctx context.Context, limit int) ([]notification.NotificationResponse, error) {
	f.mu.Lock()
	f.limit = limit
	f.mu.Unlock()
	return []notification.NotificationResponse{{ID: "n1", Event: "new_record", Data: map[string]interface{}{}}}, nil
}

func (f *fakeNotifications) lastLimit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit
}

func (f *fakeNotifications) Stop() {}

type fakeDevice struct {
	status      device.StatusResponse
	registerErr error
	configured  device.ConfigureRequest
	configErr   error
}

func (f *fakeDevice) Status(ctx context.Context) device.StatusResponse { return f.status }

func (f *fakeDevice) RegisterUser(ctx context.Context, req device.RegisterUserRequest) (device.RegisterUserResponse, error) {
	if err := req.Validate(); err != nil {
		return device.RegisterUserResponse{}, err
	}
	if f.registerErr != nil {
		return device.RegisterUserResponse{}, f.registerErr
	}
	return device.RegisterUserResponse{ExternalID: req.ExternalID}, nil
}

func (f *fakeDevice) SyncUsers(ctx context.Context) (device.SyncResult, error) {
	return device.SyncResult{Total: 2, Registered: 2, Failures: []device.SyncFailure{}}, nil
}

func (f *fakeDevice) Configure(ctx context.Context, req device.ConfigureRequest) (device.ConfigureResponse, error) {
	f.configured = req
	if f.configErr != nil {
		return device.ConfigureResponse{}, f.configErr
	}
	return device.ConfigureResponse{WebhookURL: "http://10.0.0.5:5000/api/hikvision/webhook"}, nil
}

type fakeEvidence map[string]string

func (f fakeEvidence) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f[key]
	if !ok {
		return nil, storage.ErrFileNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

// ===== FIXTURE =====

type testServer struct {
	router        *chi.Mux
	jwt           *jwt.JWTService
	ingest        *recordingIngest
	query         *fakeQuery
	reconciler    *fakeReconciler
	notifications *fakeNotifications
	device        *fakeDevice
	metrics       *metrics.Metrics
	handlers      Handlers
	notBefore     time.Time
}

func newTestServer(t *testing.T, webhookToken string) *testServer {
	t.Helper()

	jwtSvc, err := jwt.NewJWTService(handlerTestSecret, "1h")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(handlerTestPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authSvc := authService.NewAuthService(config.AdminConfig{Username: "admin", PasswordHash: string(hash)}, jwtSvc)

	ts := &testServer{
		jwt:           jwtSvc,
		ingest:        &recordingIngest{},
		query:         &fakeQuery{},
		reconciler:    &fakeReconciler{},
		notifications: &fakeNotifications{events: make(chan notification.SSEEvent, 4)},
		device:        &fakeDevice{status: device.StatusResponse{Connected: true, Location: "salon-norte"}},
		metrics:       metrics.New(),
		notBefore:     time.Date(2025, 3, 11, 13, 59, 0, 0, time.UTC),
	}

	ts.handlers = Handlers{
		Auth:         NewAuthHandler(authSvc),
		Attendance:   NewAttendanceHandler(ts.query, ts.reconciler, businesstime.Default()),
		Notification: NewNotificationHandler(ts.notifications, jwtSvc),
		Device:       NewDeviceHandler(ts.device),
		Webhook: NewWebhookHandler(ts.ingest, webhookToken, func() attendance.IngestOptions {
			return attendance.IngestOptions{NotBefore: ts.notBefore}
		}, ts.metrics),
		Evidence: NewEvidenceHandler(fakeEvidence{"attendance/2025-03-11/p1-1741753800.jpg": "jpeg-bytes"}),
	}
	ts.router = NewRouter(RouterConfig{FrontendURL: "http://localhost:3000", Env: "test"}, jwtSvc, ts.metrics, ts.handlers)
	return ts
}

func (ts *testServer) accessToken(t *testing.T) string {
	t.Helper()
	token, _, err := ts.jwt.GenerateAccessToken("admin")
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) authed(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+ts.accessToken(t))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta *struct {
		Limit      int   `json:"limit"`
		TotalItems int64 `json:"total_items"`
	} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
