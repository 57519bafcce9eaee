package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medtransfer/dss/internal/domain/analyzer"
	"github.com/medtransfer/dss/pkg/pagination"
)

// Handler serves the transfer API over echo.
type Handler struct {
	svc *Service
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/vocabulary", h.GetVocabulary)
	api.GET("/hospitals", h.ListHospitals)
	api.GET("/transfers", h.ListTransfers)
	api.POST("/analyze", h.Analyze)
	api.POST("/rank", h.Rank)
	api.POST("/recommend", h.Recommend)
}

type analyzeRequest struct {
	Report     string `json:"report"`
	NTransfers int    `json:"n_transfers"`
	SeedT      uint64 `json:"seed_t"`
}

type rankRequest struct {
	Specialty  string `json:"specialty"`
	Severity   string `json:"severity"`
	TopK       int    `json:"top_k"`
	NHospitals int    `json:"n_hospitals"`
	SeedH      uint64 `json:"seed_h"`
}

type recommendRequest struct {
	Report     string `json:"report"`
	TopK       int    `json:"top_k"`
	NHospitals int    `json:"n_hospitals"`
	NTransfers int    `json:"n_transfers"`
	SeedH      uint64 `json:"seed_h"`
	SeedT      uint64 `json:"seed_t"`
}

type analyzeResponse struct {
	*analyzer.Prediction
	TopSpecialties []analyzer.LabelProbability `json:"top_specialties"`
	TopSeverities  []analyzer.LabelProbability `json:"top_severities"`
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, analyzer.ErrNotFitted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// bindValidated reads the body, validates it against schema and decodes it
// into dst.
func bindValidated(c echo.Context, schema *Schema, dst any) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ValidateBody(schema, raw); err != nil {
		return httpError(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func querySeed(c echo.Context, name string) (uint64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func (h *Handler) GetVocabulary(c echo.Context) error {
	return c.JSON(http.StatusOK, CurrentVocabulary())
}

func (h *Handler) ListHospitals(c echo.Context) error {
	n, err := queryInt(c, "n_hospitals")
	if err != nil {
		return err
	}
	seed, err := querySeed(c, "seed_h")
	if err != nil {
		return err
	}
	items, err := h.svc.Hospitals(c.Request().Context(), Params{NHospitals: n, SeedH: seed})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListTransfers(c echo.Context) error {
	n, err := queryInt(c, "n_transfers")
	if err != nil {
		return err
	}
	seed, err := querySeed(c, "seed_t")
	if err != nil {
		return err
	}
	items, err := h.svc.Transfers(c.Request().Context(), Params{NTransfers: n, SeedT: seed})
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeRequest
	if err := bindValidated(c, AnalyzeSchema, &req); err != nil {
		return err
	}
	pred, err := h.svc.Analyze(c.Request().Context(), Params{NTransfers: req.NTransfers, SeedT: req.SeedT}, req.Report)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, analyzeResponse{
		Prediction:     pred,
		TopSpecialties: pred.TopSpecialties(explainTopN),
		TopSeverities:  pred.TopSeverities(0),
	})
}

func (h *Handler) Rank(c echo.Context) error {
	var req rankRequest
	if err := bindValidated(c, RankSchema, &req); err != nil {
		return err
	}
	p := Params{TopK: req.TopK, NHospitals: req.NHospitals, SeedH: req.SeedH}
	ranked, err := h.svc.Rank(c.Request().Context(), p, req.Specialty, req.Severity)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ranked)
}

func (h *Handler) Recommend(c echo.Context) error {
	var req recommendRequest
	if err := bindValidated(c, RecommendSchema, &req); err != nil {
		return err
	}
	p := Params{
		NHospitals: req.NHospitals,
		NTransfers: req.NTransfers,
		SeedH:      req.SeedH,
		SeedT:      req.SeedT,
		TopK:       req.TopK,
	}
	rec, err := h.svc.Recommend(c.Request().Context(), p, req.Report)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}
