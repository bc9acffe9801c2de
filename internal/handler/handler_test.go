package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/apperrors"
	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/employee"
	"faceattend/internal/faceclient"
	"faceattend/internal/facematch"
	"faceattend/internal/metrics"
	"faceattend/internal/photodir"
)

// galleryStore backs both the employee store and the match index so a
// registration is immediately matchable, as it is with pgvector in prod.
type galleryStore struct {
	rows    map[string]*employee.Employee
	gallery *facematch.Memory
}

func newGalleryStore() *galleryStore {
	return &galleryStore{rows: make(map[string]*employee.Employee), gallery: facematch.NewMemory()}
}

func (s *galleryStore) Create(_ context.Context, emp *employee.Employee, embedding []float32) error {
	if _, ok := s.rows[emp.EmployeeID]; ok {
		return apperrors.Conflict("employee %s already registered", emp.EmployeeID)
	}
	cp := *emp
	s.rows[emp.EmployeeID] = &cp
	s.gallery.Put(emp.EmployeeID, embedding)
	return nil
}

func (s *galleryStore) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.rows[id]
	return ok, nil
}

func (s *galleryStore) Get(_ context.Context, id string) (*employee.Employee, error) {
	return s.rows[id], nil
}

func (s *galleryStore) List(_ context.Context) ([]employee.Employee, error) {
	var out []employee.Employee
	for _, e := range s.rows {
		out = append(out, *e)
	}
	return out, nil
}

type memLog struct {
	records map[string]*attendance.Record
}

func (f *memLog) UpsertScan(_ context.Context, employeeID, day string, at time.Time) (attendance.Record, error) {
	if f.records == nil {
		f.records = make(map[string]*attendance.Record)
	}
	key := employeeID + "|" + day
	if rec, ok := f.records[key]; ok {
		out := at
		rec.CheckOut = &out
		return *rec, nil
	}
	rec := &attendance.Record{EmployeeID: employeeID, Day: day, CheckIn: at}
	f.records[key] = rec
	return *rec, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newGalleryStore()
	photos, err := photodir.New(t.TempDir())
	require.NoError(t, err)

	// Skip-mode embeddings are deterministic per image, so registering and
	// scanning the same bytes must match.
	face := faceclient.New("", true, time.Second)

	registration := employee.NewService(store, face, photos, time.Second, zerolog.Nop())
	scans := attendance.NewService(face, store.gallery, store, &memLog{}, nil, 0.35, time.Second, time.UTC, zerolog.Nop())

	h := New(config.App{}, registration, scans, nil, nil, nil, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/attendance", h.Attendance)
	return r
}

func doRegister(t *testing.T, r *gin.Engine, employeeID, fullName string, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("employee_id", employeeID))
	require.NoError(t, w.WriteField("full_name", fullName))
	require.NoError(t, w.WriteField("program", "Engineering"))
	if photo != nil {
		part, err := w.CreateFormFile("photo", "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/register", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func doScan(t *testing.T, r *gin.Engine, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	body, _ := json.Marshal(map[string]string{"image": dataURL})
	req := httptest.NewRequest(http.MethodPost, "/attendance", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRegisterEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rec := doRegister(t, r, "emp-1", "Alice", []byte("alice-photo"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var emp employee.Employee
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &emp))
	assert.Equal(t, "emp-1", emp.EmployeeID)
	assert.Equal(t, "Alice", emp.FullName)
}

func TestRegisterEndpointDuplicate(t *testing.T) {
	r := newTestRouter(t)

	require.Equal(t, http.StatusCreated, doRegister(t, r, "emp-1", "Alice", []byte("p")).Code)
	assert.Equal(t, http.StatusConflict, doRegister(t, r, "emp-1", "Alice", []byte("p")).Code)
}

func TestRegisterEndpointMissingPhoto(t *testing.T) {
	r := newTestRouter(t)
	assert.Equal(t, http.StatusBadRequest, doRegister(t, r, "emp-1", "Alice", nil).Code)
}

func TestAttendanceEndpoint(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, doRegister(t, r, "emp-1", "Alice", []byte("alice-photo")).Code)

	rec := doScan(t, r, []byte("alice-photo"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result attendance.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "emp-1", result.Employee.EmployeeID)
	assert.Nil(t, result.Record.CheckOut)

	rec = doScan(t, r, []byte("alice-photo"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotNil(t, result.Record.CheckOut, "second scan of the day checks out")
}

func TestAttendanceEndpointUnknownFace(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, doRegister(t, r, "emp-1", "Alice", []byte("alice-photo")).Code)

	rec := doScan(t, r, []byte("someone-else"))
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestAttendanceEndpointBadImage(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"image": "data:image/jpeg;base64,%%%not-base64%%%"})
	req := httptest.NewRequest(http.MethodPost, "/attendance", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// fakeDeviceStore tracks refresh tokens in memory; Consume mirrors the SQL
// claim, flipping a live token exactly once.
type fakeDeviceStore struct {
	devices map[string]bool
	tokens  map[string]bool // token -> still live
	saveErr error
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{devices: make(map[string]bool), tokens: make(map[string]bool)}
}

func (f *fakeDeviceStore) UpsertDevice(_ context.Context, deviceID string) error {
	f.devices[deviceID] = true
	return nil
}

func (f *fakeDeviceStore) SaveRefreshToken(_ context.Context, _, token string, _ time.Time) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.tokens[token] = true
	return nil
}

func (f *fakeDeviceStore) ConsumeRefreshToken(_ context.Context, token string) (bool, error) {
	if !f.tokens[token] {
		return false, nil
	}
	f.tokens[token] = false
	return true, nil
}

func newAuthRouter(t *testing.T, store *fakeDeviceStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		JWTIssuer:     "faceattend",
		JWTSigningKey: "test-signing-key",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		AdminAPIKey:   "test-admin-key",
	}
	h := New(cfg, nil, nil, nil, store, nil, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	r := gin.New()
	r.POST("/v1/devices/register", h.DeviceRegister)
	r.POST("/v1/devices/refresh", h.DeviceRefresh)
	r.POST("/v1/admin/token", h.AdminToken)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func TestDeviceRegisterEndpoint(t *testing.T) {
	store := newFakeDeviceStore()
	r := newAuthRouter(t, store)

	rec := postJSON(t, r, "/v1/devices/register", map[string]string{"device_id": "kiosk-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.True(t, store.devices["kiosk-1"])
	assert.True(t, store.tokens[resp.RefreshToken], "refresh token persisted")
}

func TestDeviceRefreshRotation(t *testing.T) {
	store := newFakeDeviceStore()
	r := newAuthRouter(t, store)

	rec := postJSON(t, r, "/v1/devices/register", map[string]string{"device_id": "kiosk-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var first tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = postJSON(t, r, "/v1/devices/refresh", map[string]string{"refresh_token": first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.True(t, store.tokens[second.RefreshToken])

	// The exchanged token is spent; presenting it again must fail.
	rec = postJSON(t, r, "/v1/devices/refresh", map[string]string{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The replacement still works.
	rec = postJSON(t, r, "/v1/devices/refresh", map[string]string{"refresh_token": second.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceRefreshRejectsUnknownToken(t *testing.T) {
	store := newFakeDeviceStore()
	r := newAuthRouter(t, store)

	rec := postJSON(t, r, "/v1/devices/register", map[string]string{"device_id": "kiosk-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// A validly signed token that was never persisted (here: the access
	// token) must not be exchangeable.
	rec = postJSON(t, r, "/v1/devices/refresh", map[string]string{"refresh_token": resp.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, r, "/v1/devices/refresh", map[string]string{"refresh_token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeviceRefreshSaveFailure(t *testing.T) {
	store := newFakeDeviceStore()
	r := newAuthRouter(t, store)

	rec := postJSON(t, r, "/v1/devices/register", map[string]string{"device_id": "kiosk-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	store.saveErr = assert.AnError
	rec = postJSON(t, r, "/v1/devices/refresh", map[string]string{"refresh_token": resp.RefreshToken})
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "failed persist must surface, not hand out an unsaved token")
}

func TestAdminTokenEndpoint(t *testing.T) {
	r := newAuthRouter(t, newFakeDeviceStore())

	rec := postJSON(t, r, "/v1/admin/token", map[string]string{"key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, r, "/v1/admin/token", map[string]string{"key": "test-admin-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
}

func TestPageParams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	get := func(query string) (int, int) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/admin/attendance"+query, nil)
		return pageParams(c)
	}

	limit, offset := get("")
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)

	limit, offset = get("?limit=25&offset=100")
	assert.Equal(t, 25, limit)
	assert.Equal(t, 100, offset)

	limit, _ = get("?limit=10000000")
	assert.Equal(t, maxPageSize, limit, "page size is capped")
}

func TestDecodeDataURL(t *testing.T) {
	raw := []byte("hello")
	b64 := base64.StdEncoding.EncodeToString(raw)

	got, err := decodeDataURL("data:image/jpeg;base64," + b64)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeDataURL(b64)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeDataURL("!!!")
	assert.Error(t, err)
}
