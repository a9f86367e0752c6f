package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"coinfolio/internal/domain"
	"coinfolio/internal/export"
	"coinfolio/internal/service"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"error": msg})
}

// respondServiceError maps the error taxonomy onto HTTP statuses.
// Rate limiting never reaches here; it travels as a flag, not an
// error.
func respondServiceError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, domain.ErrTooFewSnapshots):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func idParam(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, &domain.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return uint(id), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ======================================================================================
// Portfolios
// ======================================================================================

func (s *Server) handleListPortfolios(w http.ResponseWriter, _ *http.Request) {
	views, err := s.tracker.ListPortfolioViews()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

type portfolioRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	name, description := "", ""
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		description = *req.Description
	}

	p, err := s.tracker.CreatePortfolio(name, description)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	view, err := s.tracker.PortfolioView(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := s.tracker.UpdatePortfolio(id, req.Name, req.Description)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.tracker.DeletePortfolio(id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ======================================================================================
// Holdings
// ======================================================================================

type addHoldingRequest struct {
	CoinID          string           `json:"coin_id"`
	Symbol          string           `json:"symbol"`
	Name            string           `json:"name"`
	Amount          decimal.Decimal  `json:"amount"`
	AverageBuyPrice *decimal.Decimal `json:"average_buy_price"`
	ImageURL        string           `json:"image_url"`
	Note            string           `json:"note"`
}

func (s *Server) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	var req addHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	h, rateLimited, err := s.tracker.AddHolding(r.Context(), id, service.AddHoldingInput{
		CoinID:          req.CoinID,
		Symbol:          req.Symbol,
		Name:            req.Name,
		Amount:          req.Amount,
		AverageBuyPrice: req.AverageBuyPrice,
		ImageURL:        req.ImageURL,
		Note:            req.Note,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	body := map[string]any{"success": true, "holding": h}
	if rateLimited {
		body["rate_limited"] = true
		body["warning"] = "Rate limited. Price will update on the next refresh."
	}
	respondJSON(w, http.StatusCreated, body)
}

type updateHoldingRequest struct {
	Amount          *decimal.Decimal `json:"amount"`
	AverageBuyPrice *decimal.Decimal `json:"average_buy_price"`
	Note            *string          `json:"note"`
}

func (s *Server) handleUpdateHolding(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	var req updateHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h, err := s.tracker.UpdateHolding(id, service.UpdateHoldingInput{
		Amount:          req.Amount,
		AverageBuyPrice: req.AverageBuyPrice,
		Note:            req.Note,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "holding": h})
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.tracker.DeleteHolding(id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type recordBuyRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

func (s *Server) handleRecordBuy(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	var req recordBuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h, err := s.tracker.RecordBuy(id, req.Amount, req.Price)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "holding": h})
}

type moveHoldingRequest struct {
	Direction string `json:"direction"`
}

func (s *Server) handleMoveHolding(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	var req moveHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.tracker.MoveHolding(id, req.Direction); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ======================================================================================
// Market
// ======================================================================================

func (s *Server) handleSearchCoins(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	matches, rateLimited := s.tracker.SearchCoins(r.Context(), query)
	if rateLimited {
		// Retryable, not a generic failure
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":        "Rate limited. Please wait and try again.",
			"rate_limited": true,
		})
		return
	}
	if matches == nil {
		matches = []domain.CoinMatch{}
	}
	respondJSON(w, http.StatusOK, matches)
}

func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	updated, rateLimited, err := s.tracker.RefreshAllPrices(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rateLimited && updated == 0 {
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"success":      false,
			"error":        "Rate limited. Please wait and try again.",
			"rate_limited": true,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

// ======================================================================================
// Snapshots
// ======================================================================================

// snapshotView serializes a snapshot with its holdings payload
// decoded.
type snapshotView struct {
	domain.Snapshot
	HoldingsData []domain.HoldingSnapshot `json:"holdings_data"`
}

func toSnapshotView(s domain.Snapshot) snapshotView {
	records := s.Holdings()
	if records == nil {
		records = []domain.HoldingSnapshot{}
	}
	return snapshotView{Snapshot: s, HoldingsData: records}
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	var portfolioID uint
	if raw := r.URL.Query().Get("portfolio_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid portfolio_id")
			return
		}
		portfolioID = uint(id)
	}

	snapshots, err := s.snapshots.List(portfolioID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	views := make([]snapshotView, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, toSnapshotView(snap))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	snap, err := s.snapshots.Get(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshotView(*snap))
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.snapshots.Delete(id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleCapturePortfolioSnapshot refreshes prices first so the manual
// snapshot reflects current valuations, then captures.
func (s *Server) handleCapturePortfolioSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if _, _, err := s.tracker.RefreshAllPrices(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	snap, err := s.snapshots.Capture(id, true)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "snapshot": toSnapshotView(*snap)})
}

func (s *Server) handleTriggerAllSnapshots(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.tracker.RefreshAllPrices(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.snapshots.CaptureAll(true); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type compareRequest struct {
	SnapshotIDs []uint `json:"snapshot_ids"`
}

func (s *Server) handleCompareSnapshots(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	comparison, err := s.snapshots.Compare(req.SnapshotIDs)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, comparison)
}

// ======================================================================================
// Export
// ======================================================================================

func (s *Server) handleExportPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	view, err := s.tracker.PortfolioView(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	now := time.Now().UTC()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=portfolio_%d_%s.csv", id, now.Format("20060102")))
	if err := export.WriteCSV(w, view, now); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
