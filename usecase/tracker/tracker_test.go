package tracker

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkey-onchain/model"
)

// scriptedReader は呼び出しごとに用意した結果を返す。尽きたら NotFound
type scriptedReader struct {
	mu      sync.Mutex
	results []func() (*types.Receipt, error)
	calls   int
}

func (r *scriptedReader) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.results) == 0 {
		return nil, ethereum.NotFound
	}
	next := r.results[0]
	r.results = r.results[1:]
	return next()
}

func notFound() (*types.Receipt, error) { return nil, ethereum.NotFound }

func receiptWithStatus(status uint64) func() (*types.Receipt, error) {
	return func() (*types.Receipt, error) {
		return &types.Receipt{Status: status, BlockNumber: big.NewInt(12), GasUsed: 90000}, nil
	}
}

type recorder struct {
	mu     sync.Mutex
	events []model.LifecycleEventType
}

func (r *recorder) Publish(t model.LifecycleEventType, _, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

var fastConfig = Config{Horizon: 200 * time.Millisecond, PollInterval: 5 * time.Millisecond}

func pendingTx(kind model.TxKind) model.PendingTransaction {
	return model.PendingTransaction{Hash: common.HexToHash("0x1234"), Kind: kind, TokenID: big.NewInt(3)}
}

func TestTrack_Confirmed(t *testing.T) {
	reader := &scriptedReader{results: []func() (*types.Receipt, error){
		notFound,
		func() (*types.Receipt, error) { return nil, errors.New("502 bad gateway") },
		receiptWithStatus(types.ReceiptStatusSuccessful),
	}}
	rec := &recorder{}
	tr := New(reader, rec, fastConfig)

	out, err := tr.Track(context.Background(), pendingTx(model.TxBuyListing))
	require.NoError(t, err)
	assert.Equal(t, model.TxConfirmed, out.Transaction.Status)
	assert.True(t, out.Refetch)
	assert.Equal(t, uint64(90000), out.Receipt.GasUsed)
	assert.Equal(t, 3, reader.calls)
	assert.Equal(t, []model.LifecycleEventType{model.LifecycleTxSubmitted, model.LifecycleTxConfirmed}, rec.events)
	assert.Empty(t, tr.Pending())
}

func TestTrack_Reverted(t *testing.T) {
	reader := &scriptedReader{results: []func() (*types.Receipt, error){receiptWithStatus(types.ReceiptStatusFailed)}}
	rec := &recorder{}
	tr := New(reader, rec, fastConfig)

	out, err := tr.Track(context.Background(), pendingTx(model.TxBuyListing))
	assert.True(t, errors.Is(err, model.ErrCallReverted))
	assert.Equal(t, model.TxReverted, out.Transaction.Status)
	assert.False(t, out.Refetch)
	assert.Equal(t, []model.LifecycleEventType{model.LifecycleTxSubmitted, model.LifecycleTxReverted}, rec.events)
}

func TestTrack_DroppedAfterHorizon(t *testing.T) {
	reader := &scriptedReader{}
	rec := &recorder{}
	tr := New(reader, rec, fastConfig)

	start := time.Now()
	out, err := tr.Track(context.Background(), pendingTx(model.TxSetPrice))
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.True(t, errors.Is(err, model.ErrDropped))
	assert.Equal(t, model.CategoryTransport, model.KindOf(err).Category())
	assert.Equal(t, model.TxDropped, out.Transaction.Status)
	assert.False(t, out.Refetch)
	assert.Nil(t, out.Receipt)
	assert.Equal(t, []model.LifecycleEventType{model.LifecycleTxSubmitted, model.LifecycleTxDropped}, rec.events)
	assert.Empty(t, tr.Pending())
}

func TestTrack_PendingWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	reader := &scriptedReader{results: []func() (*types.Receipt, error){
		func() (*types.Receipt, error) {
			<-release
			return receiptWithStatus(types.ReceiptStatusSuccessful)()
		},
	}}
	tr := New(reader, nil, Config{Horizon: 5 * time.Second, PollInterval: time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.Track(context.Background(), pendingTx(model.TxCreateListing))
	}()

	require.Eventually(t, func() bool { return len(tr.Pending()) == 1 }, time.Second, time.Millisecond)
	p := tr.Pending()[0]
	assert.Equal(t, model.TxSubmitted, p.Status)
	assert.Equal(t, model.TxCreateListing, p.Kind)
	assert.False(t, p.SubmittedAt.IsZero())

	close(release)
	<-done
	assert.Empty(t, tr.Pending())
}

func TestNew_Defaults(t *testing.T) {
	tr := New(&scriptedReader{}, nil, Config{})
	assert.Equal(t, DefaultHorizon, tr.cfg.Horizon)
	assert.Equal(t, DefaultPollInterval, tr.cfg.PollInterval)
}
