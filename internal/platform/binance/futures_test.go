package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/pricing"
)

func newTestFutures(t *testing.T, h http.HandlerFunc) *Futures {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	policy := pricing.Policy{
		PriceTick:    decimal.RequireFromString("0.01"),
		QuantityStep: decimal.RequireFromString("0.001"),
	}
	return New(Config{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		SecretKey:         "test-secret",
		Symbol:            "BTCUSDT",
		Leverage:          46,
		MarginType:        "ISOLATED",
		RequestsPerSecond: 1000,
		Burst:             10,
	}, policy, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestPlaceEntryOrder(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathPremiumIndex:
			assert.Empty(t, r.Header.Get("X-MBX-APIKEY"))
			writeJSON(w, 200, `{"symbol":"BTCUSDT","markPrice":"27345.60"}`)
		case pathOrder:
			q := r.URL.Query()
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
			assert.Equal(t, "BUY", q.Get("side"))
			assert.Equal(t, "MARKET", q.Get("type"))
			assert.Equal(t, "0.168", q.Get("quantity"))
			assert.Equal(t, "000000000000000000000000000000000421", q.Get("newClientOrderId"))
			assert.Equal(t, "RESULT", q.Get("newOrderRespType"))
			assert.Empty(t, q.Get("reduceOnly"))
			assert.NotEmpty(t, q.Get("timestamp"))
			assert.Len(t, q.Get("signature"), 64)
			writeJSON(w, 200, `{
				"clientOrderId":"000000000000000000000000000000000421",
				"orderId":8886774,"symbol":"BTCUSDT","status":"FILLED","side":"BUY","type":"MARKET",
				"avgPrice":"27350.10","executedQty":"0.168","origQty":"0.168","stopPrice":"0"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	fill, err := f.PlaceEntryOrder(context.Background(), domain.EntryRequest{
		ClientOrderID: "000000000000000000000000000000000421",
		Side:          domain.OrderSideBuy,
		Notional:      decimal.NewFromInt(4600),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, fill.Status)
	assert.Equal(t, int64(8886774), fill.OrderID)
	assert.True(t, fill.AvgPrice.Equal(decimal.RequireFromString("27350.10")))
	assert.True(t, fill.ExecutedQty.Equal(decimal.RequireFromString("0.168")))
}

func TestPlaceEntryOrder_ReduceOnly(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == pathPremiumIndex {
			writeJSON(w, 200, `{"markPrice":"100"}`)
			return
		}
		assert.Equal(t, "true", r.URL.Query().Get("reduceOnly"))
		assert.Equal(t, "SELL", r.URL.Query().Get("side"))
		writeJSON(w, 200, `{"clientOrderId":"x4","status":"FILLED","avgPrice":"100","executedQty":"1"}`)
	})

	_, err := f.PlaceEntryOrder(context.Background(), domain.EntryRequest{
		ClientOrderID: "x4",
		Side:          domain.OrderSideSell,
		Notional:      decimal.NewFromInt(100),
		ReduceOnly:    true,
	})
	require.NoError(t, err)
}

func TestPlaceEntryOrder_Duplicate(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == pathPremiumIndex {
			writeJSON(w, 200, `{"markPrice":"100"}`)
			return
		}
		writeJSON(w, 400, `{"code":-4015,"msg":"Client order id is not valid."}`)
	})

	_, err := f.PlaceEntryOrder(context.Background(), domain.EntryRequest{
		ClientOrderID: "dup1",
		Side:          domain.OrderSideBuy,
		Notional:      decimal.NewFromInt(1000),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateClientOrderID)
	assert.Equal(t, -4015, errorCode(err))
}

func TestPlaceEntryOrder_QuantityTooSmall(t *testing.T) {
	calls := 0
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, 200, `{"markPrice":"27345.60"}`)
	})

	_, err := f.PlaceEntryOrder(context.Background(), domain.EntryRequest{
		ClientOrderID: "small1",
		Side:          domain.OrderSideBuy,
		Notional:      decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrRejectedOrder)
	assert.Equal(t, 1, calls, "no order is sent")
}

func TestPlaceBracketOrder(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "STOP_MARKET", q.Get("type"))
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Equal(t, "98", q.Get("stopPrice"))
		assert.Equal(t, "0.5", q.Get("quantity"))
		assert.Equal(t, "true", q.Get("reduceOnly"))
		writeJSON(w, 200, `{"clientOrderId":"b3","orderId":12,"status":"NEW","type":"STOP_MARKET"}`)
	})

	ack, err := f.PlaceBracketOrder(context.Background(), domain.BracketRequest{
		ClientOrderID: "b3",
		Side:          domain.OrderSideSell,
		Type:          domain.OrderTypeStopMarket,
		StopPrice:     decimal.NewFromInt(98),
		Quantity:      decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusNew, ack.Status)
	assert.Equal(t, int64(12), ack.OrderID)
}

func TestPlaceBracketOrder_RejectsMarket(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := f.PlaceBracketOrder(context.Background(), domain.BracketRequest{
		ClientOrderID: "b1",
		Type:          domain.OrderTypeMarket,
	})
	assert.ErrorIs(t, err, domain.ErrRejectedOrder)
}

func TestListOpenOrders(t *testing.T) {
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, pathOpenOrders, r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		writeJSON(w, 200, `[
			{"clientOrderId":"a2","orderId":1,"status":"NEW","side":"SELL","type":"TAKE_PROFIT_MARKET","stopPrice":"103","origQty":"0.5"},
			{"clientOrderId":"a3","orderId":2,"status":"NEW","side":"SELL","type":"STOP_MARKET","stopPrice":"98","origQty":"0.5"}
		]`)
	})

	orders, err := f.ListOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "a2", orders[0].ClientOrderID)
	assert.Equal(t, domain.OrderTypeTakeProfitMarket, orders[0].Type)
	assert.True(t, orders[1].StopPrice.Equal(decimal.NewFromInt(98)))
	assert.True(t, orders[1].Quantity.Equal(decimal.RequireFromString("0.5")))
}

func TestCancelOrder(t *testing.T) {
	t.Run("canceled", func(t *testing.T) {
		f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "c3", r.URL.Query().Get("origClientOrderId"))
			writeJSON(w, 200, `{"clientOrderId":"c3","orderId":5,"status":"CANCELED"}`)
		})
		ack, err := f.CancelOrder(context.Background(), "c3")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCanceled, ack.Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 400, `{"code":-2011,"msg":"Unknown order sent."}`)
		})
		_, err := f.CancelOrder(context.Background(), "c3")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestPrepare_ToleratesUnchangedMarginType(t *testing.T) {
	var paths []string
	f := newTestFutures(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case pathLeverage:
			assert.Equal(t, "46", r.URL.Query().Get("leverage"))
			writeJSON(w, 200, `{"leverage":46,"symbol":"BTCUSDT"}`)
		case pathMarginType:
			writeJSON(w, 400, `{"code":-4046,"msg":"No need to change margin type."}`)
		}
	})

	require.NoError(t, f.Prepare(context.Background()))
	assert.Equal(t, []string{pathLeverage, pathMarginType}, paths)
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"duplicate id", 400, `{"code":-4116,"msg":"ClientOrderId is duplicated."}`, domain.ErrDuplicateClientOrderID},
		{"no such order", 400, `{"code":-2013,"msg":"Order does not exist."}`, domain.ErrOrderNotFound},
		{"bad key", 401, `{"code":-2015,"msg":"Invalid API-key."}`, domain.ErrUnauthorized},
		{"unauthorized status", 401, `nope`, domain.ErrUnauthorized},
		{"throttled", 429, `{"code":-1003,"msg":"Too many requests."}`, domain.ErrTransient},
		{"server error", 503, `Service Unavailable`, domain.ErrTransient},
		{"exchange timeout", 400, `{"code":-1007,"msg":"Timeout waiting for response."}`, domain.ErrTransient},
		{"insufficient margin", 400, `{"code":-2019,"msg":"Margin is insufficient."}`, domain.ErrRejectedOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkResponse(tt.status, []byte(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.NoError(t, checkResponse(200, []byte(`{}`)))
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	f := New(Config{BaseURL: srv.URL, Symbol: "BTCUSDT"}, pricing.Policy{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := f.ListOpenOrders(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransient)
}
