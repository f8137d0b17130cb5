package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

var betContractABI abi.ABI

func init() {
	var err error
	betContractABI, err = abi.JSON(strings.NewReader(`[
		{"name":"betAccepted","type":"function","inputs":[
			{"name":"betId","type":"uint256"},
			{"name":"openPrice","type":"uint256"},
			{"name":"fee","type":"uint256"},
			{"name":"status","type":"uint256"}
		],"outputs":[]},
		{"name":"betCanceled","type":"function","inputs":[
			{"name":"betId","type":"uint256"}
		],"outputs":[]},
		{"name":"betWon","type":"function","inputs":[
			{"name":"betId","type":"uint256"},
			{"name":"closingPrice","type":"uint256"},
			{"name":"amount","type":"uint256"}
		],"outputs":[]},
		{"name":"betLost","type":"function","inputs":[
			{"name":"betId","type":"uint256"},
			{"name":"closingPrice","type":"uint256"},
			{"name":"amount","type":"uint256"}
		],"outputs":[]}
	]`))
	if err != nil {
		panic("bet contract abi parse: " + err.Error())
	}
}

// AcceptBet reports that the bet was hedged on the exchange.
func (c *Client) AcceptBet(ctx context.Context, id int64) error {
	return c.call(ctx, "betAccepted", big.NewInt(id), big.NewInt(1), big.NewInt(0), big.NewInt(2))
}

// CancelBet reports that the bet timed out.
func (c *Client) CancelBet(ctx context.Context, id int64) error {
	return c.call(ctx, "betCanceled", big.NewInt(id))
}

// SettleBetWon reports a winning bet.
func (c *Client) SettleBetWon(ctx context.Context, id int64, closingPrice, amount *big.Int) error {
	return c.call(ctx, "betWon", big.NewInt(id), closingPrice, amount)
}

// SettleBetLost reports a losing bet.
func (c *Client) SettleBetLost(ctx context.Context, id int64, closingPrice, amount *big.Int) error {
	return c.call(ctx, "betLost", big.NewInt(id), closingPrice, amount)
}

// call packs, signs and sends one contract transaction. The local nonce
// advances only after a successful send and is re-read from the node after a
// failure.
func (c *Client) call(ctx context.Context, method string, args ...any) error {
	if c.signer == nil {
		return fmt.Errorf("chain: %s: %w: no signer configured", method, domain.ErrSigningFailed)
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", method, err)
	}

	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.nonceKnown {
		n, err := c.backend.PendingNonceAt(ctx, c.signer.Address())
		if err != nil {
			return fmt.Errorf("chain: pending nonce: %w: %v", domain.ErrTransient, err)
		}
		c.nonce, c.nonceKnown = n, true
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonce,
		GasPrice: gasPrice,
		Gas:      c.cfg.GasLimit,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return fmt.Errorf("chain: %s: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		c.nonceKnown = false
		return fmt.Errorf("chain: send %s: %w: %v", method, domain.ErrTransient, err)
	}
	c.nonce++

	c.logger.InfoContext(ctx, "contract call sent",
		slog.String("method", method),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", signed.Nonce()),
	)
	return nil
}

func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	if c.cfg.GasPriceGwei > 0 {
		return new(big.Int).Mul(big.NewInt(c.cfg.GasPriceGwei), big.NewInt(params.GWei)), nil
	}
	p, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w: %v", domain.ErrTransient, err)
	}
	return p, nil
}

// Compile-time interface check.
var _ domain.ChainGateway = (*Client)(nil)
