package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

const (
	pathOrder        = "/fapi/v1/order"
	pathOpenOrders   = "/fapi/v1/openOrders"
	pathLeverage     = "/fapi/v1/leverage"
	pathMarginType   = "/fapi/v1/marginType"
	pathPremiumIndex = "/fapi/v1/premiumIndex"
)

// orderResponse is the order payload returned by the order endpoints.
type orderResponse struct {
	ClientOrderID string          `json:"clientOrderId"`
	OrderID       int64           `json:"orderId"`
	Symbol        string          `json:"symbol"`
	Status        string          `json:"status"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	OrigQty       decimal.Decimal `json:"origQty"`
	StopPrice     decimal.Decimal `json:"stopPrice"`
	ReduceOnly    bool            `json:"reduceOnly"`
}

type premiumIndex struct {
	Symbol    string          `json:"symbol"`
	MarkPrice decimal.Decimal `json:"markPrice"`
}

// Prepare applies the configured leverage and margin type to the symbol.
// A margin type that is already set is not an error.
func (f *Futures) Prepare(ctx context.Context) error {
	if f.cfg.Leverage > 0 {
		params := url.Values{}
		params.Set("symbol", f.cfg.Symbol)
		params.Set("leverage", strconv.Itoa(f.cfg.Leverage))
		if err := f.doSigned(ctx, http.MethodPost, pathLeverage, params, nil); err != nil {
			return fmt.Errorf("binance: set leverage: %w", err)
		}
	}

	if f.cfg.MarginType != "" {
		params := url.Values{}
		params.Set("symbol", f.cfg.Symbol)
		params.Set("marginType", f.cfg.MarginType)
		err := f.doSigned(ctx, http.MethodPost, pathMarginType, params, nil)
		if err != nil && errorCode(err) != codeNoNeedChangeMargin {
			return fmt.Errorf("binance: set margin type: %w", err)
		}
	}

	f.logger.InfoContext(ctx, "exchange prepared",
		slog.String("symbol", f.cfg.Symbol),
		slog.Int("leverage", f.cfg.Leverage),
		slog.String("margin_type", f.cfg.MarginType),
	)
	return nil
}

// MarkPrice returns the current mark price of the configured symbol.
func (f *Futures) MarkPrice(ctx context.Context) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", f.cfg.Symbol)

	var idx premiumIndex
	if err := f.doPublic(ctx, pathPremiumIndex, params, &idx); err != nil {
		return decimal.Zero, fmt.Errorf("binance: mark price: %w", err)
	}
	if !idx.MarkPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("binance: mark price %s for %s: %w", idx.MarkPrice, f.cfg.Symbol, domain.ErrTransient)
	}
	return idx.MarkPrice, nil
}

// PlaceEntryOrder sizes a market order from the requested notional at the
// current mark price and waits for its result.
func (f *Futures) PlaceEntryOrder(ctx context.Context, req domain.EntryRequest) (domain.Fill, error) {
	mark, err := f.MarkPrice(ctx)
	if err != nil {
		return domain.Fill{}, err
	}
	qty, err := f.policy.Quantity(req.Notional, mark)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("binance: entry %s: %w: %v", req.ClientOrderID, domain.ErrRejectedOrder, err)
	}

	params := url.Values{}
	params.Set("symbol", f.cfg.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(domain.OrderTypeMarket))
	params.Set("quantity", qty.String())
	params.Set("newClientOrderId", req.ClientOrderID)
	params.Set("newOrderRespType", "RESULT")
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp orderResponse
	if err := f.doSigned(ctx, http.MethodPost, pathOrder, params, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("binance: entry %s: %w", req.ClientOrderID, err)
	}

	f.logger.InfoContext(ctx, "entry order placed",
		slog.String("client_order_id", resp.ClientOrderID),
		slog.Int64("order_id", resp.OrderID),
		slog.String("status", resp.Status),
		slog.String("avg_price", resp.AvgPrice.String()),
		slog.String("executed_qty", resp.ExecutedQty.String()),
	)

	return domain.Fill{
		ClientOrderID: resp.ClientOrderID,
		OrderID:       resp.OrderID,
		Status:        domain.OrderStatus(resp.Status),
		Side:          domain.OrderSide(resp.Side),
		AvgPrice:      resp.AvgPrice,
		ExecutedQty:   resp.ExecutedQty,
	}, nil
}

// PlaceBracketOrder places a reduce-only stop or take-profit market order.
func (f *Futures) PlaceBracketOrder(ctx context.Context, req domain.BracketRequest) (domain.Ack, error) {
	switch req.Type {
	case domain.OrderTypeStopMarket, domain.OrderTypeTakeProfitMarket:
	default:
		return domain.Ack{}, fmt.Errorf("binance: bracket %s: unsupported type %q: %w", req.ClientOrderID, req.Type, domain.ErrRejectedOrder)
	}

	params := url.Values{}
	params.Set("symbol", f.cfg.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("stopPrice", req.StopPrice.String())
	params.Set("quantity", req.Quantity.String())
	params.Set("reduceOnly", "true")
	params.Set("newClientOrderId", req.ClientOrderID)

	var resp orderResponse
	if err := f.doSigned(ctx, http.MethodPost, pathOrder, params, &resp); err != nil {
		return domain.Ack{}, fmt.Errorf("binance: bracket %s: %w", req.ClientOrderID, err)
	}

	f.logger.InfoContext(ctx, "bracket order placed",
		slog.String("client_order_id", resp.ClientOrderID),
		slog.String("type", resp.Type),
		slog.String("stop_price", req.StopPrice.String()),
	)

	return domain.Ack{
		ClientOrderID: resp.ClientOrderID,
		OrderID:       resp.OrderID,
		Status:        domain.OrderStatus(resp.Status),
	}, nil
}

// ListOpenOrders returns every resting order on the configured symbol.
func (f *Futures) ListOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", f.cfg.Symbol)

	var resp []orderResponse
	if err := f.doSigned(ctx, http.MethodGet, pathOpenOrders, params, &resp); err != nil {
		return nil, fmt.Errorf("binance: open orders: %w", err)
	}

	out := make([]domain.OpenOrder, 0, len(resp))
	for _, o := range resp {
		out = append(out, domain.OpenOrder{
			ClientOrderID: o.ClientOrderID,
			OrderID:       o.OrderID,
			Type:          domain.OrderType(o.Type),
			Side:          domain.OrderSide(o.Side),
			Status:        domain.OrderStatus(o.Status),
			StopPrice:     o.StopPrice,
			Quantity:      o.OrigQty,
		})
	}
	return out, nil
}

// CancelOrder cancels a resting order by client order id. It returns
// domain.ErrOrderNotFound when the order is already gone.
func (f *Futures) CancelOrder(ctx context.Context, clientOrderID string) (domain.Ack, error) {
	params := url.Values{}
	params.Set("symbol", f.cfg.Symbol)
	params.Set("origClientOrderId", clientOrderID)

	var resp orderResponse
	err := f.doSigned(ctx, http.MethodDelete, pathOrder, params, &resp)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Ack{}, domain.ErrOrderNotFound
		}
		return domain.Ack{}, fmt.Errorf("binance: cancel %s: %w", clientOrderID, err)
	}

	f.logger.InfoContext(ctx, "order canceled", slog.String("client_order_id", clientOrderID))
	return domain.Ack{
		ClientOrderID: resp.ClientOrderID,
		OrderID:       resp.OrderID,
		Status:        domain.OrderStatus(resp.Status),
	}, nil
}

// Compile-time interface check.
var _ domain.ExchangeGateway = (*Futures)(nil)
