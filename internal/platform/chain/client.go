// Package chain implements domain.ChainGateway over an EVM JSON-RPC node:
// BetPlaced log polling and signed calls into the betting contract.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/betbridge/internal/crypto"
	"github.com/alanyoungcy/betbridge/internal/domain"
)

// Backend is the subset of *ethclient.Client the gateway uses.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Config holds the contract and transaction parameters.
type Config struct {
	Contract      string
	GasLimit      uint64
	GasPriceGwei  int64 // 0 asks the node
	Confirmations uint64
	MaxBlockRange uint64
}

const defaultMaxBlockRange = 5000

// Client is the chain gateway.
type Client struct {
	backend  Backend
	signer   *crypto.TxSigner
	contract common.Address
	abi      abi.ABI
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	nonce      uint64
	nonceKnown bool
}

// New creates a chain gateway. signer may be nil for a read-only client, in
// which case every contract call fails with domain.ErrSigningFailed.
func New(backend Backend, signer *crypto.TxSigner, cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = defaultMaxBlockRange
	}
	return &Client{
		backend:  backend,
		signer:   signer,
		contract: common.HexToAddress(cfg.Contract),
		abi:      betContractABI,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "chain")),
	}
}

// Dial connects to one of endpoints, picked at random. Endpoints that fail to
// dial or answer are dropped and another is tried; when none is left it
// returns domain.ErrNoEntrypoint.
func Dial(ctx context.Context, endpoints []string, timeout time.Duration, logger *slog.Logger) (*ethclient.Client, string, error) {
	candidates := append([]string(nil), endpoints...)
	for len(candidates) > 0 {
		i := rand.IntN(len(candidates))
		url := candidates[i]

		client, err := dialEndpoint(ctx, url, timeout)
		if err == nil {
			logger.Info("found active entrypoint", slog.String("rpc", url))
			return client, url, nil
		}
		logger.Warn("unable to connect to entrypoint",
			slog.String("rpc", url),
			slog.String("error", err.Error()),
		)
		candidates = append(candidates[:i], candidates[i+1:]...)
	}
	return nil, "", fmt.Errorf("chain: dial: %w", domain.ErrNoEntrypoint)
}

func dialEndpoint(ctx context.Context, url string, timeout time.Duration) (*ethclient.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(pctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := client.BlockNumber(pctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
