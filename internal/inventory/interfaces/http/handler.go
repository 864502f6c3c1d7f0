package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fuel-ledger/internal/activity"
	"fuel-ledger/internal/inventory/application"
	inventory "fuel-ledger/internal/inventory/domain"
	"fuel-ledger/internal/inventory/interfaces"
	"fuel-ledger/internal/observability/metrics"
)

const dateLayout = "2006-01-02"

// Handler serves the ledger HTTP API under /api/v1.
type Handler struct {
	units    *application.UnitRegistry
	ledger   *application.LedgerService
	engine   *application.TransferEngine
	activity activity.Reader
	logger   *zap.Logger
}

// NewHandler constructs a handler. activityReader may be nil.
func NewHandler(units *application.UnitRegistry, ledger *application.LedgerService, engine *application.TransferEngine, activityReader activity.Reader, logger *zap.Logger) (*Handler, error) {
	if units == nil || ledger == nil || engine == nil {
		return nil, errors.New("ledger handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{units: units, ledger: ledger, engine: engine, activity: activityReader, logger: logger}, nil
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/units", h.listUnits)
	mux.HandleFunc("POST /api/v1/units", h.registerUnit)
	mux.HandleFunc("GET /api/v1/units/{id}", h.getUnit)

	mux.HandleFunc("POST /api/v1/lots", h.createLot)
	mux.HandleFunc("GET /api/v1/lots", h.listLots)
	mux.HandleFunc("GET /api/v1/lots/preview", h.previewLot)
	mux.HandleFunc("GET /api/v1/lots/by-code/{code}", h.getLotByCode)
	mux.HandleFunc("GET /api/v1/lots/{id}", h.getLot)

	mux.HandleFunc("POST /api/v1/transfers", h.createTransfer)
	mux.HandleFunc("GET /api/v1/transfers", h.listTransfers)
	mux.HandleFunc("GET /api/v1/testing-draws", h.listTestingDraws)

	mux.HandleFunc("GET /api/v1/reports/stock.xlsx", h.exportStock("xlsx"))
	mux.HandleFunc("GET /api/v1/reports/stock.pdf", h.exportStock("pdf"))

	if h.activity != nil {
		mux.HandleFunc("GET /api/v1/activity", h.listActivity)
	}
}

type registerUnitRequest struct {
	ID             string `json:"id"`
	UnitType       string `json:"unit_type"`
	UnitCode       string `json:"unit_code"`
	CapacityLiters int64  `json:"capacity_liters"`
	Active         *bool  `json:"active"`
}

type createLotRequest struct {
	UnitID       string `json:"unit_id"`
	LoadDate     string `json:"load_date"`
	LoadedLiters int64  `json:"loaded_liters"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (h *Handler) registerUnit(w http.ResponseWriter, r *http.Request) {
	var req registerUnitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	unit, err := h.units.Register(r.Context(), inventory.StorageUnit{
		ID:             req.ID,
		UnitType:       inventory.UnitType(req.UnitType),
		UnitCode:       req.UnitCode,
		CapacityLiters: req.CapacityLiters,
		Active:         active,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, unit)
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := h.units.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (h *Handler) createLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var loadDate time.Time
	if req.LoadDate != "" {
		parsed, err := time.Parse(dateLayout, req.LoadDate)
		if err != nil {
			http.Error(w, "load_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		loadDate = parsed
	}
	lot, err := h.ledger.CreateLot(r.Context(), application.CreateLotRequest{
		UnitID:       req.UnitID,
		LoadDate:     loadDate,
		LoadedLiters: req.LoadedLiters,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseDateQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseDateQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lots, err := h.ledger.ListLots(r.Context(), inventory.LotFilter{
		UnitID: query.Get("unit_id"),
		Status: inventory.StockStatus(strings.ToUpper(query.Get("status"))),
		From:   from,
		To:     to,
		Limit:  limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if lots == nil {
		lots = []inventory.FuelLot{}
	}
	writeJSON(w, http.StatusOK, lots)
}

func (h *Handler) getLot(w http.ResponseWriter, r *http.Request) {
	lot, err := h.ledger.GetLot(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (h *Handler) getLotByCode(w http.ResponseWriter, r *http.Request) {
	lot, err := h.ledger.GetLotByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (h *Handler) previewLot(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	unitID := query.Get("unit_id")
	if unitID == "" {
		http.Error(w, "unit_id is required", http.StatusBadRequest)
		return
	}
	loadDate, err := parseDateQuery(r, "load_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	liters, err := strconv.ParseInt(query.Get("loaded_liters"), 10, 64)
	if err != nil {
		http.Error(w, "loaded_liters must be an integer", http.StatusBadRequest)
		return
	}
	preview, err := h.ledger.PreviewNextCode(r.Context(), unitID, loadDate, liters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req application.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.engine.Transfer(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) transferFilter(r *http.Request) (inventory.TransferFilter, error) {
	query := r.URL.Query()
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		return inventory.TransferFilter{}, err
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		return inventory.TransferFilter{}, err
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return inventory.TransferFilter{}, errors.New("to must be after from")
	}
	limit, err := parseLimit(r)
	if err != nil {
		return inventory.TransferFilter{}, err
	}
	return inventory.TransferFilter{
		LotID:  query.Get("lot_id"),
		UnitID: query.Get("unit_id"),
		Kind:   inventory.ActivityKind(strings.ToUpper(query.Get("kind"))),
		From:   from,
		To:     to,
		Limit:  limit,
	}, nil
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	filter, err := h.transferFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.engine.ListTransfers(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []inventory.Transfer{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) listTestingDraws(w http.ResponseWriter, r *http.Request) {
	filter, err := h.transferFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter.Kind = ""
	list, err := h.engine.ListTestingDraws(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []inventory.TestingDraw{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) exportStock(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		from, err := parseDateQuery(r, "from")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		to, err := parseDateQuery(r, "to")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		lots, err := h.ledger.ListLots(r.Context(), inventory.LotFilter{UnitID: r.URL.Query().Get("unit_id"), From: from, To: to})
		if err != nil {
			metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
			h.respondError(w, r, err)
			return
		}
		report := interfaces.NewStockReport(lots, from, to, h.ledger.Today())

		var data []byte
		contentType := "application/pdf"
		if format == "xlsx" {
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			data, err = interfaces.BuildStockXLSX(report)
		} else {
			data, err = interfaces.BuildStockPDF(report)
		}
		if err != nil {
			metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
			h.logger.Error("stock export failed", zap.String("format", format), zap.Error(err))
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		metrics.ObserveReportExport(format, metrics.ResultSuccess, time.Since(start))

		filename := fmt.Sprintf("stock-%s.%s", report.GeneratedAt.Format("20060102"), format)
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.activity.List(r.Context(), activity.Filter{
		UnitID: r.URL.Query().Get("unit_id"),
		LotID:  r.URL.Query().Get("lot_id"),
		Limit:  limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []activity.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrUnknownUnit), errors.Is(err, inventory.ErrLotNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrVolumeOutOfRange),
		errors.Is(err, inventory.ErrInvalidKind),
		errors.Is(err, inventory.ErrKindMismatch),
		errors.Is(err, inventory.ErrInvalidTransfer),
		errors.Is(err, inventory.ErrUnitInactive),
		errors.Is(err, inventory.ErrInvalidUnit),
		errors.Is(err, inventory.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrInsufficientBalance),
		errors.Is(err, inventory.ErrUnitInUse),
		errors.Is(err, inventory.ErrDuplicateLotCode):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrSequenceContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal error", status)
		return
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	http.Error(w, err.Error(), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", key)
	}
	return parsed, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", key)
	}
	return parsed, nil
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}
