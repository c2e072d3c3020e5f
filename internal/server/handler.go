package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
)

// Interface requirements for the candle query engine
type candleQuerier interface {
	Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error)
}

// HistoryHandler serves GET /history?symbol=&interval=&from=&to= with from
// and to as inclusive epoch seconds. The response uses the charting-library
// column layout: s/t/o/h/l/c/v.
type HistoryHandler struct {
	engine candleQuerier
}

func NewHistoryHandler(engine candleQuerier) *HistoryHandler {
	return &HistoryHandler{engine: engine}
}

type historyResponse struct {
	Status  string    `json:"s"`
	Times   []int64   `json:"t"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []int64   `json:"v"`
}

type errorResponse struct {
	Status  string `json:"s"`
	Message string `json:"errmsg"`
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := q.Get("symbol")
	interval := q.Get("interval")
	if symbol == "" || interval == "" {
		writeError(w, http.StatusBadRequest, "symbol and interval are required")
		return
	}

	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return
	}
	to, err := strconv.ParseInt(q.Get("to"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return
	}

	candles, err := h.engine.Query(r.Context(), symbol, interval,
		time.Unix(from, 0).UTC(), time.Unix(to, 0).UTC())
	if errors.Is(err, domain.ErrUnknownInterval) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "history query failed",
			"symbol", symbol, "interval", interval, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := historyResponse{
		Status:  "ok",
		Times:   make([]int64, 0, len(candles)),
		Opens:   make([]float64, 0, len(candles)),
		Highs:   make([]float64, 0, len(candles)),
		Lows:    make([]float64, 0, len(candles)),
		Closes:  make([]float64, 0, len(candles)),
		Volumes: make([]int64, 0, len(candles)),
	}
	for _, c := range candles {
		resp.Times = append(resp.Times, c.Time.Unix())
		resp.Opens = append(resp.Opens, c.Open)
		resp.Highs = append(resp.Highs, c.High)
		resp.Lows = append(resp.Lows, c.Low)
		resp.Closes = append(resp.Closes, c.Close)
		resp.Volumes = append(resp.Volumes, c.Volume)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Status: "error", Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
