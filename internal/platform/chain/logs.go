package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// BetPlacedTopic is domain.BetPlacedTopic as a go-ethereum hash.
var BetPlacedTopic = common.Hash(domain.BetPlacedTopic)

// FetchBetPlaced returns BetPlaced logs from fromBlock up to the safe head
// (chain head minus confirmations), at most MaxBlockRange blocks per call.
// When fromBlock is already past the safe head the batch is empty and
// caught up.
func (c *Client) FetchBetPlaced(ctx context.Context, fromBlock uint64) (domain.LogBatch, error) {
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return domain.LogBatch{}, fmt.Errorf("chain: block number: %w: %v", domain.ErrTransient, err)
	}
	safe := uint64(0)
	if head > c.cfg.Confirmations {
		safe = head - c.cfg.Confirmations
	}
	if fromBlock > safe {
		return domain.LogBatch{ToBlock: safe, Head: safe}, nil
	}

	to := fromBlock + c.cfg.MaxBlockRange - 1
	if to > safe {
		to = safe
	}

	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{BetPlacedTopic}},
	})
	if err != nil {
		return domain.LogBatch{}, fmt.Errorf("chain: filter logs [%d, %d]: %w: %v", fromBlock, to, domain.ErrTransient, err)
	}

	batch := domain.LogBatch{ToBlock: to, Head: safe, Logs: make([]domain.RawLog, 0, len(logs))}
	for _, l := range logs {
		raw := domain.RawLog{
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
			Index:       l.Index,
			Data:        l.Data,
			Removed:     l.Removed,
			Topics:      make([][32]byte, len(l.Topics)),
		}
		for i, t := range l.Topics {
			raw.Topics[i] = t
		}
		batch.Logs = append(batch.Logs, raw)
	}
	return batch, nil
}
