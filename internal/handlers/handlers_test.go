package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Brownie44l1/fishmate-api/internal/metrics"
	"github.com/Brownie44l1/fishmate-api/internal/model"
	"github.com/Brownie44l1/fishmate-api/internal/store"
	"github.com/Brownie44l1/fishmate-api/internal/zones"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

const threeClusters = `lat,lon,depth
0,0,10
0.1,0,10
0,0.1,10
10,10,20
10.1,10,20
10,10.1,20
-10,10,30
-10.1,10,30
-10,10.1,30
`

type testServer struct {
	e       *echo.Echo
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, p Predictor) *testServer {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	h := NewHandler(p, zones.NewAnalyzer(zones.DefaultOptions()), store.New(0, 0), Options{Metrics: m})
	return &testServer{e: NewServer(h, ServerConfig{}), metrics: m}
}

func mockPredictor(t *testing.T) *model.Predictor {
	t.Helper()
	return model.New(model.Config{
		ModelPath: filepath.Join(t.TempDir(), "missing.onnx"),
		MockSeed:  3,
	})
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(target string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, target, nil))
}

// upload posts content as the multipart field "file".
func (s *testServer) upload(t *testing.T, target, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return s.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","message":"Fish prediction API is running"}`, rec.Body.String())

	rec = s.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","fish_predictor_loaded":true,"model_type":"mock"}`, rec.Body.String())
}

func TestHealthWithoutPredictor(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","fish_predictor_loaded":false,"model_type":"error"}`, rec.Body.String())
}

func TestUploadCSV(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.upload(t, "/upload_csv", "samples.csv", "text/csv", []byte(threeClusters))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "CSV uploaded successfully", out["message"])
	assert.EqualValues(t, 9, out["rows"])
	_, err := uuid.Parse(out["dataset_id"].(string))
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.DatasetUploads.WithLabelValues("success")))
}

func TestUploadCSVRejected(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	tests := []struct {
		name     string
		filename string
		content  string
	}{
		{"wrong extension", "samples.txt", threeClusters},
		{"empty file", "samples.csv", ""},
		{"ragged rows", "samples.csv", "lat,lon,depth\n1,2\n"},
		{"bad quoting", "samples.csv", "lat,lon\n\"1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.upload(t, "/upload_csv", tt.filename, "text/csv", []byte(tt.content))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"error":"Invalid file"}`, rec.Body.String())
		})
	}

	rec := s.get("/predict_pfz")
	assert.JSONEq(t, `{"error":"No data uploaded"}`, rec.Body.String())
}

func TestUploadCSVMissingField(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))
	req := httptest.NewRequest(http.MethodPost, "/upload_csv", strings.NewReader("lat,lon,depth\n"))
	req.Header.Set(echo.HeaderContentType, "text/csv")
	rec := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid file"}`, rec.Body.String())
}

func TestPredictPFZ(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.get("/predict_pfz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"No data uploaded"}`, rec.Body.String())

	s.upload(t, "/upload_csv", "samples.csv", "text/csv", []byte(threeClusters))

	rec = s.get("/predict_pfz?k=3")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp zonesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Zones, 3)

	depths := map[float64]int{}
	total := 0
	for i, z := range resp.Zones {
		assert.Equal(t, i, z.ID)
		require.NotNil(t, z.AvgDepth)
		depths[*z.AvgDepth] = z.Count
		total += z.Count
	}
	assert.Equal(t, map[float64]int{10: 3, 20: 3, 30: 3}, depths)
	assert.Equal(t, 9, total)

	// Default k is 3.
	again := s.get("/predict_pfz")
	assert.JSONEq(t, rec.Body.String(), again.Body.String())
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.ZoneAnalysisTotal.WithLabelValues("zones", "success")))
}

func TestPredictPFZErrors(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))
	s.upload(t, "/upload_csv", "samples.csv", "text/csv", []byte(threeClusters))

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"k not a number", "/predict_pfz?k=three", http.StatusBadRequest},
		{"k zero", "/predict_pfz?k=0", http.StatusBadRequest},
		{"k above rows", "/predict_pfz?k=10", http.StatusBadRequest},
		{"unknown dataset", "/predict_pfz?dataset_id=" + uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.get(tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestPredictPFZMissingColumns(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))
	s.upload(t, "/upload_csv", "samples.csv", "text/csv", []byte("lat,lon\n1,2\n3,4\n"))

	rec := s.get("/predict_pfz?k=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "depth")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ZoneAnalysisTotal.WithLabelValues("zones", "error")))
}

func TestPredictPFZByDatasetID(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	first := decode(t, s.upload(t, "/upload_csv", "a.csv", "text/csv", []byte(threeClusters)))
	s.upload(t, "/upload_csv", "b.csv", "text/csv", []byte("lat,lon,depth\n1,1,5\n"))

	// Latest upload has a single row.
	rec := s.get("/predict_pfz?k=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest zonesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	require.Len(t, latest.Zones, 1)
	assert.Equal(t, 1, latest.Zones[0].Count)

	rec = s.get("/predict_pfz?k=1&dataset_id=" + first["dataset_id"].(string))
	require.Equal(t, http.StatusOK, rec.Code)
	var older zonesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &older))
	require.Len(t, older.Zones, 1)
	assert.Equal(t, 9, older.Zones[0].Count)
}

func TestHeatmap(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.get("/pfz_heatmap")
	assert.JSONEq(t, `{"error":"No data uploaded"}`, rec.Body.String())

	s.upload(t, "/upload_csv", "pfz.csv", "text/csv", []byte("Lat_dd_dec,Long_DD_dec\n1,2\n1,2\n3,4\n"))

	rec = s.get("/pfz_heatmap")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"points":[[1,2,1],[3,4,0.5]]}`, rec.Body.String())

	rec = s.get("/pfz_heatmap?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"points":[[1,2,1]]}`, rec.Body.String())

	rec = s.get("/pfz_heatmap?limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictFish(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.upload(t, "/predict_fish", "fish.jpg", "image/jpeg", jpegBytes(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var pred model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.True(t, pred.Success)
	assert.Equal(t, model.ModeMock, pred.ModelType)
	require.Len(t, pred.TopPredictions, 3)
	assert.Equal(t, pred.TopPredictions[0].Fish, pred.PredictedFish)
	assert.Equal(t, pred.TopPredictions[0].Confidence, pred.Confidence)
	for i, c := range pred.TopPredictions {
		assert.Equal(t, i+1, c.Rank)
		if i > 0 {
			assert.LessOrEqual(t, c.Confidence, pred.TopPredictions[i-1].Confidence)
		}
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.PredictionTotal.WithLabelValues("mock", "success")))
}

func TestPredictFishRejectsNonImage(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.upload(t, "/predict_fish", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"File must be an image"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/predict_fish", nil)
	rec = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "file")
}

func TestPredictFishUndecodableImage(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.upload(t, "/predict_fish", "fish.png", "image/png", []byte("not a png"))
	require.Equal(t, http.StatusOK, rec.Code)

	var pred model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.False(t, pred.Success)
	assert.Equal(t, model.ModeError, pred.ModelType)
	assert.Equal(t, model.UnknownLabel, pred.PredictedFish)
	assert.Empty(t, pred.TopPredictions)
	assert.NotEmpty(t, pred.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.PredictionTotal.WithLabelValues("mock", "error")))
}

type fakePredictor struct {
	got []float32
}

func (f *fakePredictor) IsLoaded() bool   { return true }
func (f *fakePredictor) Mode() model.Mode { return model.ModeReal }
func (f *fakePredictor) Predict([]byte) model.Prediction {
	return model.ErrorPrediction(model.ErrInference)
}

func (f *fakePredictor) PredictTensor(values []float32) model.Prediction {
	f.got = values
	return model.Prediction{
		PredictedFish:  "Tuna",
		Confidence:     0.9,
		TopPredictions: []model.Candidate{{Rank: 1, Fish: "Tuna", Confidence: 0.9}},
		Success:        true,
		ModelType:      model.ModeReal,
	}
}

func TestPredictTensor(t *testing.T) {
	fake := &fakePredictor{}
	s := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/predict_fish/tensor", strings.NewReader(`{"image":[0.5,0.25,1]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []float32{0.5, 0.25, 1}, fake.got)
	assert.Equal(t, "Tuna", decode(t, rec)["predicted_fish"])
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.PredictionTotal.WithLabelValues("real", "success")))

	req = httptest.NewRequest(http.MethodPost, "/predict_fish/tensor", strings.NewReader(`{"image":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid JSON"}`, rec.Body.String())
}

func TestPredictTensorMockMode(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	req := httptest.NewRequest(http.MethodPost, "/predict_fish/tensor", strings.NewReader(`{"image":[0,0,0]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "error", out["model_type"])
}

func TestMiddleware(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))

	rec := s.get("/health")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodOptions, "/predict_fish", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec = s.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, mockPredictor(t))
	s.get("/predict_pfz")
	s.upload(t, "/upload_csv", "samples.csv", "text/csv", []byte(threeClusters))

	rec := s.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fishmate_datasets_uploaded_total")
}
