package handler

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// BetReader is the read side of the ledger.
type BetReader interface {
	GetBet(ctx context.Context, id int64) (domain.Bet, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Bet, error)
}

// BetHandler serves the bet endpoints.
type BetHandler struct {
	bets   BetReader
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetReader, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger.With(slog.String("handler", "bets"))}
}

type betView struct {
	ID          int64      `json:"id"`
	TxHash      string     `json:"tx_hash"`
	Sender      string     `json:"sender"`
	Amount      string     `json:"amount"`
	Size        string     `json:"size"`
	Direction   string     `json:"direction"`
	Outcome     string     `json:"outcome,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	BlockNumber uint64     `json:"block_number"`
}

func toBetView(b domain.Bet) betView {
	v := betView{
		ID:          b.ID,
		TxHash:      "0x" + hex.EncodeToString(b.TxHash[:]),
		Sender:      "0x" + hex.EncodeToString(b.Sender[:]),
		Amount:      b.AmountInt().String(),
		Size:        b.PositionSize().String(),
		Direction:   b.Direction.String(),
		CreatedAt:   b.CreatedAt.UTC(),
		AcceptedAt:  b.AcceptedAt,
		BlockNumber: b.BlockNumber,
	}
	if b.Outcome != nil {
		v.Outcome = b.Outcome.String()
	}
	return v
}

// ListBets returns the newest bets.
// GET /api/bets?limit=N
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	bets, err := h.bets.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list bets", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	out := make([]betView, 0, len(bets))
	for _, b := range bets {
		out = append(out, toBetView(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBet returns one bet.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid bet id")
		return
	}
	bet, err := h.bets.GetBet(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get bet", slog.Int64("bet_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load bet")
		return
	}
	writeJSON(w, http.StatusOK, toBetView(bet))
}
