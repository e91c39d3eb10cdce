package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/classes"
	"github.com/Spok95/learning-platform/internal/entitlement"
	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/Spok95/learning-platform/internal/subscriptions"
	"github.com/Spok95/learning-platform/internal/testutil/memstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeMail struct {
	mu   sync.Mutex
	tpls []mailer.Template
}

func (f *fakeMail) SendAsync(tpl mailer.Template, _ string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tpls = append(f.tpls, tpl)
}

type fakeCheckout struct{ url string }

func (f fakeCheckout) CreateSession(context.Context, models.User, models.Package) (string, error) {
	return f.url, nil
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("down") }

type env struct {
	t      *testing.T
	st     *memstore.Store
	tokens *auth.Tokens
	router *gin.Engine
	mail   *fakeMail
	clock  time.Time
	fx     memstore.Fixture
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:      t,
		st:     memstore.New(),
		tokens: auth.NewTokens("test-secret", time.Hour),
		mail:   &fakeMail{},
		clock:  time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC),
	}
	end := e.clock.AddDate(0, 0, 5)
	e.fx = e.st.SeedPair(memstore.IntPtr(8), e.clock.AddDate(0, 0, -25), &end)
	e.router = NewRouter(Deps{
		Store:         e.st,
		Tokens:        e.tokens,
		Entitlement:   entitlement.NewCalculator(e.st, nil),
		Classes:       classes.New(e.st, 4.0, nil, nil, nil),
		Subscriptions: subscriptions.New(e.st, nil, nil, nil),
		Checkout:      fakeCheckout{url: "https://checkout.example/cs_1"},
		Mail:          e.mail,
		Loc:           time.UTC,
		Now:           func() time.Time { return e.clock },
	})
	return e
}

func (e *env) token(u models.User) string {
	tok, err := e.tokens.Issue(u.ID, u.Role)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "New@Example.com", "password": "long-enough", "fullName": "Ann"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[sessionResponse](t, w)
	assert.Equal(t, "new@example.com", resp.User.Email)
	assert.Equal(t, models.Student, resp.User.Role)
	assert.NotEmpty(t, resp.Token)
	assert.NotContains(t, w.Body.String(), "passwordHash")
	assert.Equal(t, []mailer.Template{mailer.Welcome}, e.mail.tpls)

	w = e.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "new@example.com", "password": "long-enough", "fullName": "Ann"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "new@example.com", "password": "long-enough"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), auth.CookieName+"=")

	w = e.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "new@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "whatever1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)
	cases := map[string]gin.H{
		"bad_email":   {"email": "nope", "password": "long-enough", "fullName": "A"},
		"short_pass":  {"email": "a@example.com", "password": "short", "fullName": "A"},
		"admin_role":  {"email": "a@example.com", "password": "long-enough", "fullName": "A", "role": "admin"},
		"missing_all": {},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/api/auth/register", "", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestAuthGuards(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/teacher/students", e.token(e.fx.Student), nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/admin/packages", e.token(e.fx.Teacher), gin.H{}).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/me", e.token(e.fx.Student), nil).Code)
}

func TestClassFlowThroughAPI(t *testing.T) {
	e := newEnv(t)
	teacher := e.token(e.fx.Teacher)
	studentPath := "/api/teacher/students/" + itoa(e.fx.Student.ID) + "/entitlement"

	w := e.do(http.MethodGet, studentPath, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[entitlement.Result](t, w)
	assert.Equal(t, 8, res.Remaining)
	assert.True(t, res.CanStartSession)

	w = e.do(http.MethodPost, "/api/teacher/classes/end", teacher, gin.H{"studentId": e.fx.Student.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/teacher/classes/start", teacher, gin.H{"studentId": e.fx.Student.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	e.clock = e.clock.Add(30 * time.Minute)
	w = e.do(http.MethodPost, "/api/teacher/classes/end", teacher, gin.H{"studentId": e.fx.Student.ID, "notes": "past tense"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cs := decode[models.ClassSession](t, w)
	assert.Equal(t, models.SessionCompleted, cs.Status)
	assert.InDelta(t, 2.0, cs.Earning, 1e-9)

	w = e.do(http.MethodGet, studentPath, teacher, nil)
	res = decode[entitlement.Result](t, w)
	assert.Equal(t, 7, res.Remaining)

	w = e.do(http.MethodGet, "/api/teacher/earnings?year=2025", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	earnings := decode[[]models.TeacherEarnings](t, w)
	require.Len(t, earnings, 1)
	assert.Equal(t, 1, earnings[0].TotalClasses)

	w = e.do(http.MethodGet, "/api/teacher/classes", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ClassSession](t, w), 1)

	w = e.do(http.MethodGet, "/api/student/classes", e.token(e.fx.Student), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ClassSession](t, w), 1)
}

func TestEntitlement_Errors(t *testing.T) {
	e := newEnv(t)
	other := models.User{Email: "other@example.com", FullName: "Other", Role: models.Teacher}
	require.NoError(t, e.st.CreateUser(context.Background(), &other))

	w := e.do(http.MethodGet, "/api/teacher/students/"+itoa(e.fx.Student.ID)+"/entitlement", e.token(other), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/teacher/students/abc/entitlement", e.token(e.fx.Teacher), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchedule(t *testing.T) {
	e := newEnv(t)
	teacher := e.token(e.fx.Teacher)

	w := e.do(http.MethodPost, "/api/teacher/classes/schedule", teacher, gin.H{
		"studentId": e.fx.Student.ID, "startTime": e.clock.Add(48 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.SessionScheduled, decode[models.ClassSession](t, w).Status)

	w = e.do(http.MethodPost, "/api/teacher/classes/schedule", teacher, gin.H{
		"studentId": e.fx.Student.ID, "startTime": e.clock.Add(-time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenewal(t *testing.T) {
	e := newEnv(t)
	student := e.token(e.fx.Student)

	w := e.do(http.MethodPost, "/api/subscriptions/renew", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sub := decode[models.Subscription](t, w)
	assert.Equal(t, e.clock.AddDate(0, 0, 6), sub.StartDate.UTC())

	// the new period ends 36 days from now, far outside the window
	w = e.do(http.MethodPost, "/api/subscriptions/renew", student, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 36, body["daysRemaining"])

	w = e.do(http.MethodGet, "/api/subscriptions/history", student, nil)
	assert.Len(t, decode[[]models.Subscription](t, w), 2)
}

func TestCancelAndCurrent(t *testing.T) {
	e := newEnv(t)
	student := e.token(e.fx.Student)

	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/subscriptions/me", student, nil).Code)
	require.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/api/subscriptions/cancel", student, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/subscriptions/me", student, nil).Code)
}

func TestCheckout(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/checkout", e.token(e.fx.Student), gin.H{"packageId": e.fx.Package.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://checkout.example/cs_1", decode[map[string]string](t, w)["url"])

	w = e.do(http.MethodPost, "/api/checkout", e.token(e.fx.Student), gin.H{"packageId": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin(t *testing.T) {
	e := newEnv(t)
	admin := models.User{Email: "admin@example.com", FullName: "Admin", Role: models.Admin}
	require.NoError(t, e.st.CreateUser(context.Background(), &admin))
	tok := e.token(admin)

	w := e.do(http.MethodPost, "/api/admin/packages", tok, gin.H{
		"title": "Intensive", "priceCents": 9900, "billingFrequency": "QUARTERLY", "classDurationMinutes": 60, "classesPerMonth": 12,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "usd", decode[models.Package](t, w).Currency)

	w = e.do(http.MethodPost, "/api/admin/packages", tok, gin.H{"title": "X", "billingFrequency": "WEEKLY", "classDurationMinutes": 30})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodDelete, "/api/admin/assignments", tok, gin.H{"teacherId": e.fx.Teacher.ID, "studentId": e.fx.Student.ID})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodDelete, "/api/admin/assignments", tok, gin.H{"teacherId": e.fx.Teacher.ID, "studentId": e.fx.Student.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// roles are checked
	w = e.do(http.MethodPost, "/api/admin/assignments", tok, gin.H{"teacherId": e.fx.Student.ID, "studentId": e.fx.Teacher.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPost, "/api/admin/assignments", tok, gin.H{"teacherId": e.fx.Teacher.ID, "studentId": e.fx.Student.ID})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestExportEarnings(t *testing.T) {
	e := newEnv(t)
	teacher := e.token(e.fx.Teacher)
	e.do(http.MethodPost, "/api/teacher/classes/start", teacher, gin.H{"studentId": e.fx.Student.ID})
	e.clock = e.clock.Add(time.Hour)
	e.do(http.MethodPost, "/api/teacher/classes/end", teacher, gin.H{"studentId": e.fx.Student.ID})

	w := e.do(http.MethodGet, "/api/teacher/earnings/export", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows("2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"June", "1", "4"}, rows[1])
}

func TestHealthzAndRequestID(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	r := NewRouter(Deps{Tokens: e.tokens, DB: downDB{}})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	s := &Server{log: zap.NewNop()}
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) { s.fail(c, errors.New("pq: relation users does not exist")) })
	r.GET("/panic", recovery(zap.NewNop()), func(c *gin.Context) { panic("nil map") })

	for _, path := range []string{"/boom", "/panic"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
