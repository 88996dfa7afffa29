package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"campustap/internal/auth"
	"campustap/internal/config"
	"campustap/internal/directory"
	"campustap/internal/httpapi"
	"campustap/internal/queue"
	"campustap/internal/reminder"
	"campustap/internal/scan"
	"campustap/internal/session"
)

func testConfig() config.App {
	return config.App{
		RFIDAPIKey:    "K1",
		JWTIssuer:     "campustap",
		JWTSigningKey: "test-signing-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}
}

// ---- fakes ----

type dirStore struct {
	mu         sync.Mutex
	students   map[string]*directory.Student
	failUpsert bool
}

func (d *dirStore) StudentByCard(_ context.Context, code string) (*directory.Student, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.students[code]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (d *dirStore) ProfileByCard(context.Context, string) (*directory.Profile, error) {
	return nil, nil
}

func (d *dirStore) CreateStudent(_ context.Context, s directory.Student) (*directory.Student, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.students[s.RFIDCode]; ok {
		copied := *existing
		return &copied, nil
	}
	s.ID = "stu-" + s.RFIDCode
	d.students[s.RFIDCode] = &s
	copied := s
	return &copied, nil
}

func (d *dirStore) PromoteStudent(context.Context, string, directory.Profile) (*directory.Student, error) {
	return nil, fmt.Errorf("not implemented")
}

func (d *dirStore) UpsertLecturer(context.Context, string, string) (string, error) {
	if d.failUpsert {
		return "", fmt.Errorf("dial tcp 127.0.0.1:5433: connection refused")
	}
	return "lect-1", nil
}

func (d *dirStore) SaveRefreshToken(context.Context, string, string, time.Time) error {
	return nil
}

type sessStore struct {
	sessions []session.Session
}

func (s *sessStore) ActiveByCode(_ context.Context, code string) (*session.Session, error) {
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if s.sessions[i].SessionCode == code && s.sessions[i].IsActive {
			found := s.sessions[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (s *sessStore) LatestActive(context.Context) (*session.Session, error) {
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if s.sessions[i].IsActive {
			found := s.sessions[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (s *sessStore) Latest(context.Context) (*session.Session, error) {
	if len(s.sessions) == 0 {
		return nil, nil
	}
	found := s.sessions[len(s.sessions)-1]
	return &found, nil
}

func (s *sessStore) ClassByCode(_ context.Context, code string) (*session.Class, error) {
	if code == "CSC301" {
		return &session.Class{ID: "class-1", Code: "CSC301", Name: "Compilers", Room: "LT2", Time: "09:00"}, nil
	}
	return nil, nil
}

func (s *sessStore) Create(_ context.Context, sess session.Session) (session.Session, error) {
	sess.ID = fmt.Sprintf("sess-%d", len(s.sessions)+1)
	sess.IsActive = true
	sess.StartTime = time.Now().UTC()
	sess.CreatedAt = sess.StartTime
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

func (s *sessStore) End(_ context.Context, id string) (*session.Session, error) {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			now := time.Now().UTC()
			s.sessions[i].IsActive = false
			s.sessions[i].EndTime = &now
			found := s.sessions[i]
			return &found, nil
		}
	}
	return nil, nil
}

type ledgerStore struct {
	mu        sync.Mutex
	records   []scan.Record
	lastLimit int
}

func (l *ledgerStore) Insert(_ context.Context, rec scan.Record) (scan.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.SessionID != nil && rec.StudentID != nil {
		for _, r := range l.records {
			if r.SessionID != nil && r.StudentID != nil && *r.SessionID == *rec.SessionID && *r.StudentID == *rec.StudentID {
				return scan.Record{}, scan.ErrDuplicateRecord
			}
		}
	}
	rec.ID = fmt.Sprintf("rec-%d", len(l.records)+1)
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *ledgerStore) FindBySessionStudent(_ context.Context, sessionID, studentID string) (*scan.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.SessionID != nil && r.StudentID != nil && *r.SessionID == sessionID && *r.StudentID == studentID {
			copied := r
			return &copied, nil
		}
	}
	return nil, nil
}

func (l *ledgerStore) BackfillStudent(context.Context, string, string) (int64, error) {
	return 0, nil
}

func (l *ledgerStore) List(_ context.Context, sessionID, studentID string, limit, offset int) ([]scan.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastLimit = limit
	out := make([]scan.Record, len(l.records))
	copy(out, l.records)
	return out, nil
}

type emptyReminderStore struct{}

func (emptyReminderStore) UpcomingSessions(context.Context, time.Time, time.Time) ([]reminder.UpcomingSession, error) {
	return nil, nil
}
func (emptyReminderStore) EnrolledStudentIDs(context.Context, string) ([]string, error) {
	return nil, nil
}
func (emptyReminderStore) InsertNotifications(context.Context, []reminder.Notification) error {
	return nil
}

// ---- harness ----

type env struct {
	router *gin.Engine
	ledger *ledgerStore
	dir    *dirStore
	cfg    config.App
}

func newEnv(t *testing.T, debounce scan.Debouncer) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	dept := "Computer Science"
	dir := &dirStore{students: map[string]*directory.Student{
		"AB12": {ID: "stu-ada", Name: "Ada Obi", MatricNumber: "CSC/19/001", RFIDCode: "AB12", Department: &dept},
	}}
	sessions := &sessStore{sessions: []session.Session{
		{ID: "sess-1", ClassID: "class-1", SessionCode: "S1", IsActive: true, StartTime: time.Now().UTC(), CreatedAt: time.Now().UTC()},
	}}
	ledger := &ledgerStore{}

	scans := scan.NewService(
		directory.NewResolver(dir),
		session.NewResolver(sessions, session.StrategyExplicit),
		ledger,
		debounce,
	)
	reminders := reminder.NewService(emptyReminderStore{}, 30*time.Minute)
	h := httpapi.New(cfg, scans, sessions, ledger, dir, reminders, queue.NewInMemory(16))
	return &env{router: httpapi.NewRouter(h, nil), ledger: ledger, dir: dir, cfg: cfg}
}

func (e *env) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

// ---- tests ----

func TestScanInvalidAPIKey(t *testing.T) {
	e := newEnv(t, scan.NewMemoryDebouncer(5*time.Minute))
	w := e.post("/v1/scan", `{"rfid_code":"AB12","api_key":"wrong","session_code":"S1"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decode(t, w); body["error"] != "Invalid API key" {
		t.Fatalf("body = %v", body)
	}
	if len(e.ledger.records) != 0 {
		t.Fatal("unauthorized scan must not write the ledger")
	}
}

func TestScanAcceptedThenDebounced(t *testing.T) {
	e := newEnv(t, scan.NewMemoryDebouncer(5*time.Minute))

	w := e.post("/v1/scan", `{"rfid_code":"AB12","api_key":"K1","session_code":"S1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["session_code"] != "S1" {
		t.Fatalf("body = %v", body)
	}
	student := body["student"].(map[string]any)
	if student["name"] != "Ada Obi" || student["matric_number"] != "CSC/19/001" || student["department"] != "Computer Science" {
		t.Fatalf("student = %v", student)
	}
	if _, err := time.Parse(time.RFC3339, body["check_in_time"].(string)); err != nil {
		t.Fatalf("check_in_time not RFC3339: %v", err)
	}

	w = e.post("/v1/scan", `{"rfid_code":"AB12","api_key":"K1","session_code":"S1"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("second scan status = %d, want 409", w.Code)
	}
	body = decode(t, w)
	if body["error"] != "Already scanned recently" {
		t.Fatalf("body = %v", body)
	}
	if len(e.ledger.records) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(e.ledger.records))
	}
}

type nopDebounce struct{}

func (nopDebounce) Reserve(context.Context, string, time.Time) (time.Time, bool, error) {
	return time.Time{}, true, nil
}
func (nopDebounce) Release(context.Context, string) error { return nil }

func TestScanPerSessionDuplicate(t *testing.T) {
	e := newEnv(t, nopDebounce{})

	if w := e.post("/v1/scan", `{"rfid_code":"AB12","api_key":"K1","session_code":"S1"}`); w.Code != http.StatusOK {
		t.Fatalf("first scan status = %d, want 200", w.Code)
	}
	w := e.post("/v1/scan", `{"rfid_code":"AB12","api_key":"K1","session_code":"S1"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("second scan status = %d, want 409", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "Already checked in" || body["student"] != "Ada Obi" {
		t.Fatalf("body = %v", body)
	}
}

func TestScanUnknownCardStillAccepted(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	w := e.post("/v1/scan", `{"rfid_code":"ZZ99","api_key":"K1","session_code":"S1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	student := decode(t, w)["student"].(map[string]any)
	if student["name"] != "Unknown Student" || student["matric_number"] != "N/A" {
		t.Fatalf("student = %v", student)
	}
	if len(e.ledger.records) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(e.ledger.records))
	}
}

func TestScanSessionNotFound(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	w := e.post("/v1/scan", `{"rfid_code":"AB12","api_key":"K1","session_code":"GHOST"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "Active session not found" || body["session_code"] != "GHOST" {
		t.Fatalf("body = %v", body)
	}
}

func TestScanMissingFields(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	if w := e.post("/v1/scan", `{"api_key":"K1"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestScanPreflight(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/scan", nil)
	req.Header.Set("Origin", "https://dashboard.example.edu")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("preflight body = %q, want empty", w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q, want *", got)
	}
}

func TestRecordsRequireToken(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	tokens, err := auth.Issue("lect-1", "lecturer", e.cfg.JWTIssuer, e.cfg.JWTSigningKey, e.cfg.AccessTTL, e.cfg.RefreshTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	tokens, err := auth.Issue("lect-1", "lecturer", e.cfg.JWTIssuer, e.cfg.JWTSigningKey, e.cfg.AccessTTL, e.cfg.RefreshTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"class_code":"CSC301"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("start session status = %d (body %s)", w.Code, w.Body.String())
	}
	body := decode(t, w)
	code, _ := body["session_code"].(string)
	if !strings.HasPrefix(code, "CSC301-") {
		t.Fatalf("session_code = %q, want CSC301-XXXX", code)
	}
	id := body["id"].(string)

	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/end", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("end session status = %d (body %s)", w.Code, w.Body.String())
	}
	ended := decode(t, w)
	if ended["is_active"] != false || ended["end_time"] == nil {
		t.Fatalf("ended session = %v", ended)
	}
}

func TestRegisterLecturerIssuesTokens(t *testing.T) {
	e := newEnv(t, nopDebounce{})

	w := e.post("/v1/lecturers/register", `{"name":"Dr. Umar","email":"umar@example.edu","api_key":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad key = %d, want 401", w.Code)
	}

	w = e.post("/v1/lecturers/register", `{"name":"Dr. Umar","email":"umar@example.edu","api_key":"K1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["access_token"] == "" || body["refresh_token"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestRegisterLecturerStoreFailure(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	e.dir.failUpsert = true

	w := e.post("/v1/lecturers/register", `{"name":"Dr. Umar","email":"umar@example.edu","api_key":"K1"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "Failed to register lecturer" {
		t.Fatalf("body = %v, storage detail must not leak", body)
	}
}

func TestListRecordsClampsLimit(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	tokens, err := auth.Issue("lect-1", "lecturer", e.cfg.JWTIssuer, e.cfg.JWTSigningKey, e.cfg.AccessTTL, e.cfg.RefreshTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/records?limit=1000000", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	if e.ledger.lastLimit != 500 {
		t.Fatalf("store saw limit %d, want clamp to 500", e.ledger.lastLimit)
	}
}

func TestDispatchRemindersEndpoint(t *testing.T) {
	e := newEnv(t, nopDebounce{})
	w := e.post("/v1/reminders/dispatch", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}
}
