package domain

import "github.com/ethereum/go-ethereum/common"

// BetPlacedTopic is the signature hash of the contract's BetPlaced event,
// the first topic of every log the ingestor consumes.
var BetPlacedTopic = [32]byte(common.HexToHash("0x4f1eed5e863a822b0f9eb960dfdab2cc5a99beec4b191f2a7a9c7e28e5a15524"))

// RawLog is a contract log as returned by the chain node, reduced to the
// fields the ingestor needs.
type RawLog struct {
	BlockNumber uint64
	TxHash      [32]byte
	Index       uint
	Topics      [][32]byte
	Data        []byte
	Removed     bool
}

// LogBatch is the result of one log query. ToBlock is the last block covered
// by the query (inclusive), whether or not it produced logs, and Head is the
// highest block the node considers safe to read.
type LogBatch struct {
	Logs    []RawLog
	ToBlock uint64
	Head    uint64
}

// CaughtUp reports whether the batch reached the safe head.
func (b LogBatch) CaughtUp() bool {
	return b.ToBlock >= b.Head
}

// MaxBlock returns the highest block number among the logs, or 0 when the
// batch is empty.
func (b LogBatch) MaxBlock() uint64 {
	var highest uint64
	for _, l := range b.Logs {
		if l.BlockNumber > highest {
			highest = l.BlockNumber
		}
	}
	return highest
}
