// Package httpapi is the ambient HTTP surface the Analysis Orchestrator
// and Inventory pipeline are driven through (spec §6 "External
// interfaces"). It replaces the teacher's GraphQL resolver: the generated
// gqlgen code that resolver depended on isn't present in the retrieved
// example and can't be regenerated without running the Go toolchain, so
// the six inbound operations spec §6 names are exposed as plain JSON
// routes on the same echo.Echo router instead (see DESIGN.md). Route
// registration and JSON-response conventions otherwise follow the
// teacher's internal/tiles.Handler.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"forest-analysis-core/internal/auth"
	"forest-analysis-core/internal/coreerr"
	"forest-analysis-core/internal/crsdetect"
	"forest-analysis-core/internal/export"
	"forest-analysis-core/internal/geomutil"
	"forest-analysis-core/internal/inventory"
	"forest-analysis-core/internal/model"
	"forest-analysis-core/internal/orchestrator"
	"forest-analysis-core/internal/persistence"
	"forest-analysis-core/internal/species"
	"forest-analysis-core/internal/validator"
)

// Handler wires every collaborator the six inbound operations need.
type Handler struct {
	Store        *persistence.Store
	Orchestrator *orchestrator.Orchestrator
	Species      *species.Table
	Inventory    *inventory.Processor

	DefaultGridSpacingM    float64
	RequestDeadlineSeconds int
}

// Register attaches every route to an echo.Echo instance behind the auth
// middleware, mirroring the teacher's cmd/server wiring order (middleware
// first, then route groups).
func (h *Handler) Register(e *echo.Echo, authSvc *auth.Service) {
	api := e.Group("/api/v1", authSvc.Middleware())

	api.POST("/calculations", h.StartCalculation)
	api.GET("/calculations/:id", h.GetCalculation)

	api.POST("/inventories", h.UploadInventory)
	api.POST("/inventories/:id/process", h.ProcessInventory)
	api.GET("/inventories/:id", h.GetInventory)
	api.GET("/inventories/:id/export", h.ExportInventory)
}

// startCalculationRequest mirrors spec §6 "Start a Calculation".
type startCalculationRequest struct {
	ForestName string           `json:"forest_name"`
	CRS        model.CRSName    `json:"crs"`
	Polygons   []polygonPayload `json:"polygons"`
	Options    model.OptionMask `json:"option_mask"`
}

type polygonPayload struct {
	BlockName string           `json:"block_name"`
	Exterior  [][2]float64     `json:"exterior"`
	Holes     [][][2]float64   `json:"holes"`
}

// StartCalculation begins a new Calculation and runs it synchronously
// against the orchestrator (spec §6 "Start a Calculation" ->
// {calculation_id, status}).
func (h *Handler) StartCalculation(c echo.Context) error {
	var req startCalculationRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, coreerr.New(coreerr.KindInvalidInput, "malformed request body: %v", err))
	}
	if req.ForestName == "" {
		return jsonError(c, coreerr.New(coreerr.KindInvalidInput, "forest_name is required and must be non-empty"))
	}
	if len(req.Polygons) == 0 {
		return jsonError(c, coreerr.New(coreerr.KindInvalidInput, "boundary must contain at least one polygon"))
	}

	user := auth.GetUser(c.Request().Context())
	owner := "anonymous"
	if user != nil {
		owner = user.UserID
	}

	polygons := make([]model.Polygon, len(req.Polygons))
	for i, p := range req.Polygons {
		polygons[i] = model.Polygon{
			BlockName: p.BlockName,
			Exterior:  toRing(p.Exterior),
			Holes:     toRings(p.Holes),
		}
	}

	calc := &model.Calculation{
		ID:         persistence.NewCalculationID(),
		Owner:      owner,
		ForestName: req.ForestName,
		CreatedAt:  time.Now(),
		Options:    req.Options,
		Boundary:   model.Boundary{Polygons: polygons, CRS: req.CRS},
		Status:     model.CalcPending,
	}

	deadline := time.Duration(h.RequestDeadlineSeconds) * time.Second
	if deadline <= 0 {
		deadline = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), deadline)
	defer cancel()

	h.Orchestrator.Run(ctx, calc)

	if err := h.Store.UpsertCalculation(c.Request().Context(), calc); err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"calculation_id": calc.ID,
		"status":         calc.Status,
	})
}

// GetCalculation fetches stored Calculation state (spec §6 "Fetch
// Calculation or Inventory state").
func (h *Handler) GetCalculation(c echo.Context) error {
	calc, err := h.Store.GetCalculation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, calc)
}

// UploadInventory validates a tabular upload and, if it passes, persists
// it and returns a summary; otherwise returns the ValidationReport (spec
// §6 "Upload an Inventory").
func (h *Handler) UploadInventory(c echo.Context) error {
	file, err := c.FormFile("tabular_bytes")
	if err != nil {
		return jsonError(c, coreerr.New(coreerr.KindInvalidInput, "tabular_bytes file field is required"))
	}
	src, err := file.Open()
	if err != nil {
		return jsonError(c, coreerr.Wrap(coreerr.KindInvalidInput, err, "open uploaded file"))
	}
	defer src.Close()
	raw, err := io.ReadAll(src)
	if err != nil {
		return jsonError(c, coreerr.Wrap(coreerr.KindInvalidInput, err, "read uploaded file"))
	}

	gridSpacing := h.DefaultGridSpacingM
	if v := c.FormValue("grid_spacing_m"); v != "" {
		if parsed, ok := parseFloatForm(v); ok {
			gridSpacing = parsed
		}
	}

	var userCRS *crsdetect.CRS
	if v := c.FormValue("user_crs"); v != "" {
		crs := crsdetect.CRS(v)
		userCRS = &crs
	}

	report, normalized := validator.Validate(validator.Input{
		TabularBytes:  raw,
		UserCRS:       userCRS,
		AllowAutoSwap: true,
		Species:       h.Species,
	})

	user := auth.GetUser(c.Request().Context())
	owner := "anonymous"
	if user != nil {
		owner = user.UserID
	}

	invID := persistence.NewInventoryID()
	if err := h.Store.InsertValidationLog(c.Request().Context(), invID, report); err != nil {
		return jsonError(c, err)
	}

	if !report.ReadyForProcessing {
		return c.JSON(http.StatusOK, report)
	}

	trees, summary := h.Inventory.Process(normalized, gridSpacing)
	summary.ID = invID
	summary.Owner = owner
	summary.Status = model.InvValidated
	summary.CalculationID = c.FormValue("calculation_id")
	summary.TargetCRS = model.CRSName(report.DetectedCRS)

	if err := h.Store.BulkInsertTrees(c.Request().Context(), invID, trees); err != nil {
		summary.Status = model.InvFailed
		_ = h.Store.UpsertInventory(c.Request().Context(), &summary)
		return jsonError(c, err)
	}
	if err := h.Store.UpsertInventory(c.Request().Context(), &summary); err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"inventory_id": invID,
		"summary":      summary,
	})
}

// ProcessInventory re-runs C2/C5/C6 over the same tabular file for an
// existing Inventory (spec §6 "Process an Inventory").
func (h *Handler) ProcessInventory(c echo.Context) error {
	invID := c.Param("id")
	inv, err := h.Store.GetInventory(c.Request().Context(), invID)
	if err != nil {
		return jsonError(c, err)
	}

	file, err := c.FormFile("tabular_bytes")
	if err != nil {
		return jsonError(c, coreerr.New(coreerr.KindInvalidInput, "tabular_bytes file field is required"))
	}
	src, err := file.Open()
	if err != nil {
		return jsonError(c, coreerr.Wrap(coreerr.KindInvalidInput, err, "open uploaded file"))
	}
	defer src.Close()
	raw, err := io.ReadAll(src)
	if err != nil {
		return jsonError(c, coreerr.Wrap(coreerr.KindInvalidInput, err, "read uploaded file"))
	}

	report, normalized := validator.Validate(validator.Input{
		TabularBytes:  raw,
		AllowAutoSwap: true,
		Species:       h.Species,
	})
	if !report.ReadyForProcessing {
		inv.Status = model.InvFailed
		_ = h.Store.UpsertInventory(c.Request().Context(), inv)
		return c.JSON(http.StatusOK, report)
	}

	inv.Status = model.InvProcessing
	trees, summary := h.Inventory.Process(normalized, inv.GridSpacingM)
	summary.ID = inv.ID
	summary.Owner = inv.Owner
	summary.CalculationID = inv.CalculationID
	summary.TargetCRS = model.CRSName(report.DetectedCRS)
	summary.Status = model.InvCompleted

	if err := h.Store.BulkInsertTrees(c.Request().Context(), invID, trees); err != nil {
		summary.Status = model.InvFailed
		_ = h.Store.UpsertInventory(c.Request().Context(), &summary)
		return jsonError(c, err)
	}
	if err := h.Store.UpsertInventory(c.Request().Context(), &summary); err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"inventory_id": invID,
		"status":       summary.Status,
		"summary":      summary,
	})
}

// GetInventory fetches stored Inventory state.
func (h *Handler) GetInventory(c echo.Context) error {
	inv, err := h.Store.GetInventory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, inv)
}

// ExportInventory serves an Inventory as CSV or GeoJSON bytes (spec §6
// "Export").
func (h *Handler) ExportInventory(c echo.Context) error {
	invID := c.Param("id")
	format := c.QueryParam("format")

	trees, err := h.Store.FetchTrees(c.Request().Context(), invID)
	if err != nil {
		return jsonError(c, err)
	}

	switch format {
	case "csv":
		body, err := export.ToCSV(trees)
		if err != nil {
			return jsonError(c, err)
		}
		return c.Blob(http.StatusOK, "text/csv", body)
	case "geojson":
		body, err := export.ToGeoJSON(trees)
		if err != nil {
			return jsonError(c, err)
		}
		return c.Blob(http.StatusOK, "application/geo+json", body)
	default:
		return jsonError(c, coreerr.New(coreerr.KindInvalidInput, "format must be 'csv' or 'geojson'"))
	}
}

func toRing(pts [][2]float64) geomutil.Ring {
	r := make(geomutil.Ring, len(pts))
	for i, p := range pts {
		r[i] = geomutil.Point{X: p[0], Y: p[1]}
	}
	return r
}

func toRings(rings [][][2]float64) []geomutil.Ring {
	out := make([]geomutil.Ring, len(rings))
	for i, r := range rings {
		out[i] = toRing(r)
	}
	return out
}

func jsonError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	kind := coreerr.KindInternal
	var ce *coreerr.Error
	if e, ok := err.(*coreerr.Error); ok {
		ce = e
		kind = ce.Kind
	}
	switch kind {
	case coreerr.KindInvalidInput, coreerr.KindCRSUndetectable, coreerr.KindCRSMismatch,
		coreerr.KindSpeciesUnknown, coreerr.KindGirthAmbiguous, coreerr.KindCoordsSwapped,
		coreerr.KindRangeFatal, coreerr.KindNoTrees:
		status = http.StatusBadRequest
	case coreerr.KindTimedOut:
		status = http.StatusGatewayTimeout
	case coreerr.KindDBTransient, coreerr.KindDBFatal:
		status = http.StatusBadGateway
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "kind": kind})
}

func parseFloatForm(s string) (float64, bool) {
	var v float64
	_, err := fmt.Sscanf(s, "%f", &v)
	return v, err == nil
}
