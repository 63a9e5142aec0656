package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer-studio-backend/internal/classifier"
	"dealer-studio-backend/internal/generator"
	"dealer-studio-backend/internal/handlers"
	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/pipeline"
	"dealer-studio-backend/internal/store"
	"dealer-studio-backend/internal/studio"
	"dealer-studio-backend/internal/supabase"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
)

type fakeClassifier struct {
	result classifier.Classification
}

func (f *fakeClassifier) Classify(context.Context, models.Image) classifier.Classification {
	return f.result
}

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, req generator.Request) (models.Image, error) {
	if f.err != nil {
		return models.Image{}, f.err
	}
	return models.Image{MimeType: "image/png", Data: pngBytes}, nil
}

type fakePlates struct{}

func (fakePlates) Plate(context.Context, string) (models.Image, error) {
	return models.Image{MimeType: "image/png", Data: pngBytes}, nil
}

type fakeFiles struct {
	files []supabase.OrderFile
	err   error
}

func (f *fakeFiles) GetOrderFiles(string) ([]supabase.OrderFile, error) {
	return f.files, f.err
}

// closeNotifyRecorder lets c.Stream run against a recorder.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (closeNotifyRecorder) CloseNotify() <-chan bool {
	return make(chan bool)
}

type testServer struct {
	store  *store.Store
	cls    *fakeClassifier
	gen    *fakeGenerator
	router *gin.Engine
}

func newTestServer(t *testing.T, archive handlers.FileLister) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := studio.DefaultCatalog()
	st := store.New(store.Options{StudioExists: catalog.Exists})
	s := &testServer{
		store: st,
		cls:   &fakeClassifier{result: classifier.Classification{Category: models.CategoryInterior, Confidence: 0.9}},
		gen:   &fakeGenerator{},
	}
	orch := pipeline.New(st, s.cls, s.gen, fakePlates{}, pipeline.Options{})
	s.router = handlers.NewRouter(handlers.Deps{
		RunCtx:          context.Background(),
		Store:           st,
		Orchestrator:    orch,
		Catalog:         catalog,
		Classifier:      s.cls,
		Archive:         archive,
		ClassifyTimeout: time.Second,
		MaxUploadBytes:  1 << 20,
		PollInterval:    10 * time.Millisecond,
	})
	return s
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *testServer) createOrder(t *testing.T, task string) models.OrderResponse {
	t.Helper()
	w := s.doJSON(t, http.MethodPost, "/api/v1/orders", models.CreateOrderRequest{TaskType: task, StudioID: "studio-03"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	return order
}

type upload struct {
	name string
	data []byte
}

func multipartRequest(t *testing.T, path, field string, files []upload, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *testServer) attach(t *testing.T, orderID string, fields map[string]string, files ...upload) models.UploadResponse {
	t.Helper()
	w := s.do(multipartRequest(t, "/api/v1/orders/"+orderID+"/jobs", "images", files, fields))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) waitDrained(t *testing.T, orderID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		p, err := s.store.Progress(orderID)
		return err == nil && p.State == store.RunDrained
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", handlers.HealthHandler)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t, nil)

	order := s.createOrder(t, "bg-replacement")
	assert.Equal(t, models.TaskBackgroundReplacement, order.TaskType)
	assert.Equal(t, "studio-03", order.StudioID)
	assert.Equal(t, models.OrderStatusDraft, order.Status)
	assert.Equal(t, "Background Replacement 1", order.Title)
	assert.Empty(t, order.Jobs)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"unknown task", models.CreateOrderRequest{TaskType: "hdr", StudioID: "studio-01"}, http.StatusBadRequest},
		{"unknown studio", models.CreateOrderRequest{TaskType: "interior", StudioID: "moon-base"}, http.StatusBadRequest},
		{"missing studio", map[string]string{"task_type": "interior"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.doJSON(t, http.MethodPost, "/api/v1/orders", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.doJSON(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t, "bg-replacement")

	resp := s.attach(t, order.ID, map[string]string{"source": "camera", "angles": "front, rear_left_34"},
		upload{"a.png", pngBytes}, upload{"b.jpg", jpegBytes})
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, models.AngleFront, resp.Jobs[0].Angle)
	assert.Equal(t, models.AngleRearLeft34, resp.Jobs[1].Angle)
	for _, job := range resp.Jobs {
		assert.Equal(t, models.JobStatusPending, job.Status)
	}

	untagged := s.attach(t, order.ID, nil, upload{"c.png", pngBytes})
	require.Len(t, untagged.Jobs, 1)
	assert.Equal(t, models.DefaultUploadAngle, untagged.Jobs[0].Angle)

	path := "/api/v1/orders/" + order.ID + "/jobs"
	tests := []struct {
		name   string
		files  []upload
		fields map[string]string
	}{
		{"camera without angles", []upload{{"a.png", pngBytes}}, map[string]string{"source": "camera"}},
		{"angle count mismatch", []upload{{"a.png", pngBytes}}, map[string]string{"angles": "front,rear"}},
		{"unknown angle", []upload{{"a.png", pngBytes}}, map[string]string{"angles": "roof"}},
		{"unknown source", []upload{{"a.png", pngBytes}}, map[string]string{"source": "fax"}},
		{"not an image", []upload{{"notes.txt", []byte("hello there")}}, nil},
		{"no files", nil, map[string]string{"source": "upload"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(multipartRequest(t, path, "images", tt.files, tt.fields))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	got, err := s.store.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Len(t, got.Jobs, 3)
}

func TestProcess_RunsBatchToCompletion(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t, "bg-replacement")
	jobs := s.attach(t, order.ID, nil, upload{"a.png", pngBytes}, upload{"b.png", pngBytes}).Jobs

	w := s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/process", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted models.ProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, 2, accepted.Total)

	s.waitDrained(t, order.ID)

	w = s.doJSON(t, http.MethodGet, "/api/v1/orders/"+order.ID+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress models.ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, "drained", progress.State)
	assert.Equal(t, 2, progress.Processed)
	assert.Equal(t, 100, progress.Percent)
	require.NotEmpty(t, progress.Logs)
	assert.Equal(t, "Batch complete: 2 of 2 assets ready.", progress.Logs[len(progress.Logs)-1].Message)

	w = s.doJSON(t, http.MethodGet, "/api/v1/orders/"+order.ID+"/progress?from=1", nil)
	var tail models.ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tail))
	assert.Len(t, tail.Logs, len(progress.Logs)-1)

	w = s.doJSON(t, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.OrderStatusCompleted, got.Status)
	for _, job := range got.Jobs {
		assert.Equal(t, models.JobStatusCompleted, job.Status)
		assert.Equal(t, models.AngleInterior, job.Angle)
		assert.True(t, job.HasProcessed)
		assert.NotNil(t, job.FinishedAt)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID+"/jobs/"+jobs[0].ID+"/image", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, w.Body.Bytes())

	w = s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/process", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "no pending jobs left")
}

func TestProcess_FailedJobCanBeRetried(t *testing.T) {
	s := newTestServer(t, nil)
	s.gen.err = &generator.GenerationError{Model: "m", FinishReason: "SAFETY"}
	order := s.createOrder(t, "interior")
	jobs := s.attach(t, order.ID, map[string]string{"angles": "interior"}, upload{"a.png", pngBytes}).Jobs

	w := s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/process", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	s.waitDrained(t, order.ID)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID+"/jobs/"+jobs[0].ID+"/image", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "failed jobs have no processed image")

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID+"/jobs/"+jobs[0].ID+"/image?variant=original", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngBytes, w.Body.Bytes())

	w = s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/jobs/"+jobs[0].ID+"/retry", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var retried models.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &retried))
	assert.NotEqual(t, jobs[0].ID, retried.ID)
	assert.Equal(t, models.JobStatusPending, retried.Status)
	assert.Equal(t, models.AngleInterior, retried.Angle)

	w = s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/jobs/"+retried.ID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "only failed jobs can be retried")
}

func TestCancel_WithoutRun(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t, "bg-replacement")
	w := s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSetStudio_LockedAfterFirstRun(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t, "bg-replacement")

	w := s.doJSON(t, http.MethodPut, "/api/v1/orders/"+order.ID+"/studio", models.SetStudioRequest{StudioID: "white-infinity"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	s.attach(t, order.ID, map[string]string{"angles": "front"}, upload{"a.png", pngBytes})
	require.Equal(t, http.StatusAccepted, s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/process", nil).Code)
	s.waitDrained(t, order.ID)

	w = s.doJSON(t, http.MethodPut, "/api/v1/orders/"+order.ID+"/studio", models.SetStudioRequest{StudioID: "studio-05"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t, "plate-blur")

	w := s.doJSON(t, http.MethodDelete, "/api/v1/orders/"+order.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.doJSON(t, http.MethodDelete, "/api/v1/orders/"+order.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t, nil)
	s.createOrder(t, "bg-replacement")
	s.createOrder(t, "interior")

	w := s.doJSON(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.OrderListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 2)
}

func TestEvents_StreamsUntilDone(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t, "bg-replacement")
	s.attach(t, order.ID, map[string]string{"angles": "front"}, upload{"a.png", pngBytes})
	require.Equal(t, http.StatusAccepted, s.doJSON(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/process", nil).Code)

	w := closeNotifyRecorder{httptest.NewRecorder()}
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID+"/events", nil))

	body := w.Body.String()
	assert.Contains(t, body, "event:log")
	assert.Contains(t, body, "Batch complete: 1 of 1 assets ready.")
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"))
	assert.Equal(t, 1, strings.Count(body, "event:done"))
}

func TestEvents_IdleOrderEndsImmediately(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t, "bg-replacement")

	w := closeNotifyRecorder{httptest.NewRecorder()}
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID+"/events", nil))
	assert.Contains(t, w.Body.String(), "event:done")
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
}

func TestListStudios(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.doJSON(t, http.MethodGet, "/api/v1/studios", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.StudiosResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Studios, 20)
	assert.Equal(t, studio.DefaultID, resp.Studios[0].ID)
	assert.NotContains(t, w.Body.String(), ".png")
}

func TestBranding(t *testing.T) {
	s := newTestServer(t, nil)

	req := multipartRequest(t, "/api/v1/branding", "logo", []upload{{"logo.png", pngBytes}}, map[string]string{"enabled": "true"})
	req.Method = http.MethodPut
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.doJSON(t, http.MethodGet, "/api/v1/branding", nil)
	var resp models.BrandingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.True(t, resp.HasLogo)
	assert.True(t, resp.Active)
	assert.Equal(t, "image/png", resp.MimeType)

	req = multipartRequest(t, "/api/v1/branding", "logo", nil, map[string]string{"remove_logo": "true"})
	req.Method = http.MethodPut
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.False(t, resp.Active)

	req = multipartRequest(t, "/api/v1/branding", "logo", nil, map[string]string{"enabled": "maybe"})
	req.Method = http.MethodPut
	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
}

func TestClassify(t *testing.T) {
	s := newTestServer(t, nil)
	s.cls.result = classifier.Classification{Category: models.CategoryDoorOpen, Confidence: 0.77}

	w := s.do(multipartRequest(t, "/api/v1/classify", "image", []upload{{"a.jpg", jpegBytes}}, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.CategoryDoorOpen, resp.Category)
	assert.Equal(t, models.AngleDoorOpen, resp.Angle)
	assert.InDelta(t, 0.77, resp.Confidence, 1e-9)
	assert.False(t, resp.Fallback)

	w = s.do(multipartRequest(t, "/api/v1/classify", "photo", []upload{{"a.jpg", jpegBytes}}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetFiles(t *testing.T) {
	t.Run("archive not configured", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.doJSON(t, http.MethodGet, "/api/v1/orders/o-1/files", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("lists archived files", func(t *testing.T) {
		id := uuid.New()
		s := newTestServer(t, &fakeFiles{files: []supabase.OrderFile{{
			ID: id, OrderID: "o-1", JobID: "j-1", Angle: "front",
			StorageURL: "https://example.supabase.co/storage/v1/object/public/processed-images/orders/o-1/j-1.png",
			FileSize:   42, MimeType: "image/png",
		}}})
		w := s.doJSON(t, http.MethodGet, "/api/v1/orders/o-1/files", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.FilesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Files, 1)
		assert.Equal(t, id.String(), resp.Files[0].ID)
		assert.Equal(t, "j-1", resp.Files[0].JobID)
		assert.Equal(t, int64(42), resp.Files[0].FileSize)
	})

	t.Run("database error", func(t *testing.T) {
		s := newTestServer(t, &fakeFiles{err: errors.New("connection refused")})
		w := s.doJSON(t, http.MethodGet, "/api/v1/orders/o-1/files", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
