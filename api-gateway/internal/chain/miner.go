package chain

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrMinerStopped is returned to submitters once the miner has shut down.
var ErrMinerStopped = errors.New("miner stopped")

type submission struct {
	tx   Tx
	done chan submissionResult
}

type submissionResult struct {
	receipt Receipt
	err     error
}

// Miner batches submitted transactions into a block every interval. Empty
// intervals still produce a block so the height tracks wall-clock time.
type Miner struct {
	chain    *Chain
	interval time.Duration
	maxTxs   int
	mempool  chan submission
	stopped  chan struct{}
	log      zerolog.Logger
}

// NewMiner returns a miner for c. maxTxs bounds the transactions per block.
func NewMiner(c *Chain, interval time.Duration, maxTxs int, log zerolog.Logger) *Miner {
	if maxTxs <= 0 {
		maxTxs = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Miner{
		chain:    c,
		interval: interval,
		maxTxs:   maxTxs,
		mempool:  make(chan submission, maxTxs*4),
		stopped:  make(chan struct{}),
		log:      log,
	}
}

// Submit queues tx and waits for the block that includes it. A transaction
// accepted into the mempool is mined even if ctx is cancelled afterwards.
func (m *Miner) Submit(ctx context.Context, tx Tx) (Receipt, error) {
	s := submission{tx: tx, done: make(chan submissionResult, 1)}
	select {
	case m.mempool <- s:
	case <-m.stopped:
		return Receipt{}, ErrMinerStopped
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
	select {
	case res := <-s.done:
		return res.receipt, res.err
	case <-m.stopped:
		return Receipt{}, ErrMinerStopped
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// Run mines until ctx is done.
func (m *Miner) Run(ctx context.Context) error {
	defer close(m.stopped)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.mineOnce(ctx); err != nil {
				if errors.Is(err, ErrHalted) {
					return err
				}
				m.log.Error().Err(err).Msg("mine block")
			}
		}
	}
}

func (m *Miner) mineOnce(ctx context.Context) error {
	batch := m.drain()
	txs := make([]Tx, len(batch))
	for i, s := range batch {
		txs[i] = s.tx
	}

	block, err := m.chain.MineBlock(ctx, txs)
	for i, s := range batch {
		if err != nil {
			s.done <- submissionResult{err: err}
			continue
		}
		s.done <- submissionResult{receipt: block.Receipts[i]}
	}
	if err != nil {
		return err
	}
	if len(txs) > 0 {
		m.log.Debug().Uint64("height", block.Height).Int("txs", len(txs)).Msg("block mined")
	}
	return nil
}

func (m *Miner) drain() []submission {
	var batch []submission
	for len(batch) < m.maxTxs {
		select {
		case s := <-m.mempool:
			batch = append(batch, s)
		default:
			return batch
		}
	}
	return batch
}
