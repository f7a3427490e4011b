package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"parkey-onchain/metrics"
	"parkey-onchain/model"
	"parkey-onchain/usecase/notify"
)

const (
	// DefaultHorizon はレシートを待つ最大時間。超えたら Dropped
	DefaultHorizon = 3 * time.Minute
	// DefaultPollInterval はレシート確認の間隔
	DefaultPollInterval = 2 * time.Second
)

// ReceiptReader はレシートを取得する (*ethclient.Client が満たす)
// 未取り込みなら ethereum.NotFound を返す
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config はトラッカーの設定
type Config struct {
	Horizon      time.Duration
	PollInterval time.Duration
}

// Outcome は終端状態に達したトランザクションの結果
type Outcome struct {
	Transaction model.PendingTransaction
	Receipt     *types.Receipt
	// Refetch は Confirmed のときだけ true。ローカルの出品データは古い
	Refetch bool
}

// Tracker は送信済みトランザクションを終端状態まで追跡する
type Tracker struct {
	reader   ReceiptReader
	notifier notify.Notifier
	cfg      Config
	logger   log.Logger

	mu      sync.Mutex
	pending map[common.Hash]model.PendingTransaction
}

func New(reader ReceiptReader, notifier notify.Notifier, cfg Config) *Tracker {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Tracker{
		reader:   reader,
		notifier: notifier,
		cfg:      cfg,
		logger:   log.New("component", "tracker"),
		pending:  make(map[common.Hash]model.PendingTransaction),
	}
}

// Track は tx を Submitted として登録し、終端状態になるまでブロックする
// Confirmed 以外はエラーも返す (Reverted: CallReverted, Dropped: Dropped)
func (t *Tracker) Track(ctx context.Context, tx model.PendingTransaction) (Outcome, error) {
	tx.Status = model.TxSubmitted
	if tx.SubmittedAt.IsZero() {
		tx.SubmittedAt = time.Now()
	}
	hash := tx.Hash.Hex()

	t.mu.Lock()
	t.pending[tx.Hash] = tx
	metrics.PendingTransactions.Set(float64(len(t.pending)))
	t.mu.Unlock()

	metrics.TransactionsSubmitted.WithLabelValues(string(tx.Kind)).Inc()
	t.logger.Info("Transaction submitted", "hash", hash, "kind", tx.Kind)
	t.publish(model.LifecycleTxSubmitted, "tx.submitted", "Transaction submitted", hash)

	receipt := t.waitReceipt(ctx, tx.Hash)

	out := Outcome{Transaction: tx, Receipt: receipt}
	var err error
	switch {
	case receipt == nil:
		out.Transaction.Status = model.TxDropped
		err = model.NewDroppedError(hash)
		t.logger.Warn("Transaction dropped", "hash", hash, "horizon", t.cfg.Horizon)
		t.publish(model.LifecycleTxDropped, "tx.dropped", "Transaction was not confirmed in time", hash)
	case receipt.Status == types.ReceiptStatusSuccessful:
		out.Transaction.Status = model.TxConfirmed
		out.Refetch = true
		t.logger.Info("Transaction confirmed", "hash", hash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
		t.publish(model.LifecycleTxConfirmed, "tx.confirmed", "Transaction confirmed", hash)
	default:
		out.Transaction.Status = model.TxReverted
		err = model.NewCallRevertedError(hash, nil)
		t.logger.Warn("Transaction reverted", "hash", hash, "block", receipt.BlockNumber)
		t.publish(model.LifecycleTxReverted, "tx.reverted", "Transaction was rejected by the contract", hash)
	}

	// 終端状態を報告したら追跡から外す
	t.mu.Lock()
	delete(t.pending, tx.Hash)
	metrics.PendingTransactions.Set(float64(len(t.pending)))
	t.mu.Unlock()

	metrics.TransactionsTerminal.WithLabelValues(string(tx.Kind), string(out.Transaction.Status)).Inc()
	metrics.ConfirmationDuration.Observe(time.Since(tx.SubmittedAt).Seconds())
	return out, err
}

// waitReceipt はホライズン内でレシートをポーリングする。見つからなければ nil
func (t *Tracker) waitReceipt(ctx context.Context, hash common.Hash) *types.Receipt {
	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.Horizon)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(t.cfg.PollInterval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return nil
		}

		receipt, err := t.reader.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			if waitCtx.Err() != nil {
				return nil
			}
			// 通信エラーは一時的なものとしてホライズンまで再試行する
			t.logger.Debug("Receipt lookup failed, retrying", "hash", hash, "err", err)
		}
	}
}

// Pending は Submitted のトランザクションを送信順に返す
func (t *Tracker) Pending() []model.PendingTransaction {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.PendingTransaction, 0, len(t.pending))
	for _, tx := range t.pending {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (t *Tracker) publish(et model.LifecycleEventType, key, message, hash string) {
	if t.notifier != nil {
		t.notifier.Publish(et, key, message, hash)
	}
}
