package router

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/OpenNSW/enrollment/internal/auth"
	"github.com/OpenNSW/enrollment/internal/enrollment"
	"github.com/OpenNSW/enrollment/internal/model"
	"github.com/OpenNSW/enrollment/internal/policy"
	"github.com/OpenNSW/enrollment/internal/render"
	"github.com/OpenNSW/enrollment/internal/session"
	"github.com/OpenNSW/enrollment/internal/submission"
	"github.com/OpenNSW/enrollment/internal/uploads"
	"github.com/OpenNSW/enrollment/internal/uploads/drivers"
	"github.com/OpenNSW/enrollment/internal/urls"
	"github.com/OpenNSW/enrollment/web"
)

const (
	testSecret = "router-secret"
	cookieName = "enrollment_session"
)

var pdfContent = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

func setupEngine(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Submission{}, &model.BenefitPlan{}, &model.EmployeeEnrollment{}, &session.Session{}))

	store := enrollment.NewStore(db)
	require.NoError(t, store.SeedPlans(context.Background(), enrollment.DefaultPlans))

	reverser := urls.NewReverser()
	require.NoError(t, enrollment.RegisterPaths(reverser))
	renderer, err := render.New(web.Templates())
	require.NoError(t, err)
	driver, err := drivers.NewLocalFSDriver(t.TempDir(), "/uploads")
	require.NoError(t, err)

	engine := New(Deps{
		DB:        db,
		JWTSecret: testSecret,
		Sessions:  session.NewGormStore(db),
		Session:   session.Options{CookieName: cookieName, TTL: time.Hour},
		Enrollment: &enrollment.Deps{
			Renderer:    renderer,
			URLs:        reverser,
			Submissions: submission.NewService(submission.NewStore(db), submission.DraftPolicyLatest),
			Store:       store,
			Uploads:     uploads.NewUploadService(driver),
			Policies:    policy.NewRegistry(),
		},
	})
	return engine, db
}

// client keeps the token and session cookie of one user across requests.
type client struct {
	t       *testing.T
	engine  *gin.Engine
	token   string
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, engine *gin.Engine, userID string) *client {
	t.Helper()
	token, err := auth.IssueToken(testSecret, auth.Actor{ID: userID, Company: "acme"}, time.Hour)
	require.NoError(t, err)
	return &client{t: t, engine: engine, token: token, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.engine.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (c *client) post(target string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func TestHealthCheck(t *testing.T) {
	engine, _ := setupEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPages_RequireAuthentication(t *testing.T) {
	engine, _ := setupEngine(t)

	anonymous := &client{t: t, engine: engine, cookies: map[string]*http.Cookie{}}
	assert.Equal(t, http.StatusUnauthorized, anonymous.get("/enroll/").Code)

	forged := &client{t: t, engine: engine, token: "not-a-token", cookies: map[string]*http.Cookie{}}
	assert.Equal(t, http.StatusUnauthorized, forged.get("/enroll/employee/").Code)
}

func TestPages_SessionCookieAndMenu(t *testing.T) {
	engine, _ := setupEngine(t)
	c := newClient(t, engine, "emp-1")

	rec := c.get("/enroll/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "New Enrollment")
	require.Contains(t, c.cookies, cookieName)
	first := c.cookies[cookieName].Value

	rec = c.post("/enroll/", url.Values{"choice": {enrollment.ChoiceNewEnrollment}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/enroll/employee/", rec.Header().Get("Location"))
	assert.Equal(t, first, c.cookies[cookieName].Value)
}

func TestPages_MethodNotAllowed(t *testing.T) {
	engine, _ := setupEngine(t)
	c := newClient(t, engine, "emp-1")

	rec := c.do(httptest.NewRequest(http.MethodDelete, "/enroll/employee/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD, POST, PUT", rec.Header().Get("Allow"))
}

func TestPages_DraftFollowsSessionCookie(t *testing.T) {
	engine, db := setupEngine(t)
	c := newClient(t, engine, "emp-1")

	rec := c.post("/enroll/employee/", url.Values{
		"first_name":       {"Ada"},
		"last_name":        {"Lovelace"},
		"email":            {"ada@example.com"},
		"hsa_contribution": {"100"},
		"submission_type":  {"new_enrollment"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/enroll/employees/", rec.Header().Get("Location"))

	rec = c.get("/enroll/employees/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="Ada"`)

	var sess session.Session
	require.NoError(t, db.First(&sess, "id = ?", c.cookies[cookieName].Value).Error)
	require.NotNil(t, sess.SubmissionID)
	assert.Equal(t, "emp-1", sess.UserID)
}

func TestDocumentDownload(t *testing.T) {
	engine, db := setupEngine(t)
	owner := newClient(t, engine, "emp-1")

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, value := range map[string]string{
		"first_name":       "Ada",
		"last_name":        "Lovelace",
		"email":            "ada@example.com",
		"hsa_contribution": "100",
		"submission_type":  "new_enrollment",
	} {
		require.NoError(t, w.WriteField(name, value))
	}
	part, err := w.CreateFormFile("document", "proof.pdf")
	require.NoError(t, err)
	_, err = part.Write(pdfContent)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/enroll/employee/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.Equal(t, http.StatusFound, owner.do(req).Code)

	var record model.EmployeeEnrollment
	require.NoError(t, db.First(&record).Error)
	require.NotEmpty(t, record.DocumentKey)

	rec := owner.get("/uploads/" + record.DocumentKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pdfContent, rec.Body.Bytes())

	stranger := newClient(t, engine, "emp-2")
	assert.Equal(t, http.StatusNotFound, stranger.get("/uploads/"+record.DocumentKey).Code)

	anonymous := &client{t: t, engine: engine, cookies: map[string]*http.Cookie{}}
	assert.Equal(t, http.StatusUnauthorized, anonymous.get("/uploads/"+record.DocumentKey).Code)
}
