package pipeline

import (
	"fmt"
	"math/big"
	"time"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

const wordSize = 32

// DecodeBetPlaced turns a BetPlaced log into a Bet created at now.
//
// Layout: topic[0] is the event signature, topic[1] the bet id as a
// big-endian uint256, topic[2] the sender left-padded to 32 bytes. Data holds
// two words: the direction code and the raw 18-decimal amount.
func DecodeBetPlaced(l domain.RawLog, now time.Time) (domain.Bet, error) {
	if l.Removed {
		return domain.Bet{}, fmt.Errorf("pipeline: log %x/%d removed by reorg: %w", l.TxHash, l.Index, domain.ErrMalformed)
	}
	if len(l.Topics) < 3 {
		return domain.Bet{}, fmt.Errorf("pipeline: log has %d topics, want 3: %w", len(l.Topics), domain.ErrMalformed)
	}
	if l.Topics[0] != domain.BetPlacedTopic {
		return domain.Bet{}, fmt.Errorf("pipeline: unexpected event signature %x: %w", l.Topics[0], domain.ErrMalformed)
	}
	if len(l.Data) < 2*wordSize {
		return domain.Bet{}, fmt.Errorf("pipeline: log data is %d bytes, want %d: %w", len(l.Data), 2*wordSize, domain.ErrMalformed)
	}

	id := new(big.Int).SetBytes(l.Topics[1][:])
	if !id.IsInt64() {
		return domain.Bet{}, fmt.Errorf("pipeline: bet id %s overflows int64: %w", id, domain.ErrMalformed)
	}

	code := new(big.Int).SetBytes(l.Data[:wordSize])
	if !code.IsUint64() {
		return domain.Bet{}, fmt.Errorf("pipeline: bet %s direction word overflows: %w", id, domain.ErrMalformed)
	}
	dir, err := domain.ParseDirection(code.Uint64())
	if err != nil {
		return domain.Bet{}, fmt.Errorf("pipeline: bet %s: %w", id, err)
	}

	b := domain.Bet{
		ID:          id.Int64(),
		TxHash:      l.TxHash,
		CreatedAt:   now.UTC(),
		Direction:   dir,
		BlockNumber: l.BlockNumber,
	}
	copy(b.Sender[:], l.Topics[2][12:])
	copy(b.Amount[:], l.Data[wordSize:2*wordSize])
	return b, nil
}
