package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/fishmate-api/internal/metrics"
	"github.com/Brownie44l1/fishmate-api/internal/model"
	"github.com/Brownie44l1/fishmate-api/internal/store"
	"github.com/Brownie44l1/fishmate-api/internal/zones"
)

// Predictor is the part of model.Predictor the handlers use.
type Predictor interface {
	IsLoaded() bool
	Mode() model.Mode
	Predict(data []byte) model.Prediction
	PredictTensor(values []float32) model.Prediction
}

type Options struct {
	DefaultK     int
	HeatmapLimit int
	Metrics      *metrics.Metrics
}

type Handler struct {
	predictor    Predictor
	analyzer     *zones.Analyzer
	datasets     *store.Datasets
	metrics      *metrics.Metrics
	defaultK     int
	heatmapLimit int
}

func NewHandler(predictor Predictor, analyzer *zones.Analyzer, datasets *store.Datasets, opts Options) *Handler {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 3
	}
	if opts.HeatmapLimit <= 0 {
		opts.HeatmapLimit = 100
	}
	return &Handler{
		predictor:    predictor,
		analyzer:     analyzer,
		datasets:     datasets,
		metrics:      opts.Metrics,
		defaultK:     opts.DefaultK,
		heatmapLimit: opts.HeatmapLimit,
	}
}

// Register mounts the API routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/upload_csv", h.UploadCSV)
	e.GET("/predict_pfz", h.PredictPFZ)
	e.GET("/pfz_heatmap", h.Heatmap)
	e.POST("/predict_fish", h.PredictFish)
	e.POST("/predict_fish/tensor", h.PredictTensor)
}

type errorResponse struct {
	Error string `json:"error"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Fish prediction API is running",
	})
}

type healthResponse struct {
	Status              string     `json:"status"`
	FishPredictorLoaded bool       `json:"fish_predictor_loaded"`
	ModelType           model.Mode `json:"model_type"`
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:              "healthy",
		FishPredictorLoaded: h.predictor != nil && h.predictor.IsLoaded(),
		ModelType:           h.mode(),
	})
}

type uploadResponse struct {
	Message   string `json:"message"`
	Rows      int    `json:"rows"`
	DatasetID string `json:"dataset_id"`
}

var errInvalidFile = errorResponse{Error: "Invalid file"}

func (h *Handler) UploadCSV(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		h.metrics.RecordUpload("error")
		return c.JSON(http.StatusBadRequest, errInvalidFile)
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		h.metrics.RecordUpload("error")
		return c.JSON(http.StatusOK, errInvalidFile)
	}

	file, err := header.Open()
	if err != nil {
		h.metrics.RecordUpload("error")
		return c.JSON(http.StatusOK, errInvalidFile)
	}
	defer file.Close()

	table, err := zones.ParseCSV(file)
	if err != nil {
		log.Debug().Err(err).Str("filename", header.Filename).Msg("rejected dataset upload")
		h.metrics.RecordUpload("error")
		return c.JSON(http.StatusOK, errInvalidFile)
	}

	id := h.datasets.Put(table)
	h.metrics.RecordUpload("success")
	log.Info().
		Str("dataset_id", id).
		Str("filename", header.Filename).
		Int("rows", table.Len()).
		Msg("dataset uploaded")

	return c.JSON(http.StatusOK, uploadResponse{
		Message:   "CSV uploaded successfully",
		Rows:      table.Len(),
		DatasetID: id,
	})
}

type zonesResponse struct {
	Zones []zones.Zone `json:"zones"`
}

func (h *Handler) PredictPFZ(c echo.Context) error {
	k, err := intParam(c, "k", h.defaultK)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "k must be an integer"})
	}
	table, ok, err := h.dataset(c)
	if err != nil || !ok {
		return err
	}

	result, err := h.analyzer.Analyze(table, k)
	if err != nil {
		h.metrics.RecordZoneAnalysis("zones", "error")
		return zoneError(c, err)
	}
	h.metrics.RecordZoneAnalysis("zones", "success")
	return c.JSON(http.StatusOK, zonesResponse{Zones: result})
}

type heatmapResponse struct {
	Points []zones.HeatPoint `json:"points"`
}

func (h *Handler) Heatmap(c echo.Context) error {
	limit, err := intParam(c, "limit", h.heatmapLimit)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
	}
	table, ok, err := h.dataset(c)
	if err != nil || !ok {
		return err
	}

	points, err := zones.Heatmap(table, limit)
	if err != nil {
		h.metrics.RecordZoneAnalysis("heatmap", "error")
		return zoneError(c, err)
	}
	h.metrics.RecordZoneAnalysis("heatmap", "success")
	return c.JSON(http.StatusOK, heatmapResponse{Points: points})
}

// dataset resolves the table a zone query runs on: the one named by
// dataset_id, or the latest upload. When ok is false the response is written.
func (h *Handler) dataset(c echo.Context) (*zones.Table, bool, error) {
	if id := c.QueryParam("dataset_id"); id != "" {
		table, ok := h.datasets.Get(id)
		if !ok {
			return nil, false, c.JSON(http.StatusNotFound, errorResponse{Error: "Dataset not found"})
		}
		return table, true, nil
	}
	table, _, ok := h.datasets.Latest()
	if !ok {
		return nil, false, c.JSON(http.StatusOK, errorResponse{Error: "No data uploaded"})
	}
	return table, true, nil
}

func zoneError(c echo.Context, err error) error {
	if errors.Is(err, zones.ErrSchema) || errors.Is(err, zones.ErrClustering) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	log.Error().Err(err).Msg("zone analysis failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func (h *Handler) PredictFish(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, detailResponse{Detail: "No image file provided. Use 'file' as the form field name"})
	}
	if !strings.HasPrefix(header.Header.Get(echo.HeaderContentType), "image/") {
		return c.JSON(http.StatusBadRequest, detailResponse{Detail: "File must be an image"})
	}

	file, err := header.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, detailResponse{Detail: "Error processing image: " + err.Error()})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, detailResponse{Detail: "Error processing image: " + err.Error()})
	}

	log.Debug().Str("filename", header.Filename).Int("bytes", len(data)).Msg("received fish image")
	return c.JSON(http.StatusOK, h.predict(func(p Predictor) model.Prediction { return p.Predict(data) }))
}

func (h *Handler) PredictTensor(c echo.Context) error {
	var req model.TensorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detailResponse{Detail: "Invalid JSON"})
	}
	return c.JSON(http.StatusOK, h.predict(func(p Predictor) model.Prediction { return p.PredictTensor(req.Image) }))
}

func (h *Handler) predict(run func(Predictor) model.Prediction) model.Prediction {
	if h.predictor == nil {
		return model.ErrorPrediction(model.ErrModelUnavailable)
	}
	start := time.Now()
	pred := run(h.predictor)

	status := "success"
	if pred.ModelType == model.ModeError {
		status = "error"
		log.Warn().Str("error", pred.Error).Msg("fish prediction failed")
	}
	h.metrics.RecordPrediction(string(h.mode()), status, time.Since(start))
	return pred
}

func (h *Handler) mode() model.Mode {
	if h.predictor == nil {
		return model.ModeError
	}
	return h.predictor.Mode()
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
