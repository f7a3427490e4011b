package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkey-onchain/model"
)

func TestBus_ActiveAutoDismiss(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBus(3 * time.Second)
	b.now = func() time.Time { return now }

	b.Publish(model.LifecycleConnecting, "wallet.connecting", "connecting", "")
	now = now.Add(2 * time.Second)
	b.Publish(model.LifecycleConnected, "wallet.connected", "connected", "")

	active := b.Active()
	require.Len(t, active, 2)
	assert.Equal(t, model.SeverityInfo, active[0].Severity)
	assert.Equal(t, model.SeveritySuccess, active[1].Severity)
	assert.NotEmpty(t, active[0].ID)
	assert.NotEqual(t, active[0].ID, active[1].ID)

	now = now.Add(2 * time.Second)
	active = b.Active()
	require.Len(t, active, 1)
	assert.Equal(t, model.LifecycleConnected, active[0].Type)

	now = now.Add(time.Second)
	assert.Empty(t, b.Active())
}

func TestBus_Subscribe(t *testing.T) {
	b := NewBus(0)
	ch, cancel := b.Subscribe(1)

	b.Publish(model.LifecycleTxSubmitted, "tx.submitted", "submitted", "0xabc")
	b.Publish(model.LifecycleTxConfirmed, "tx.confirmed", "confirmed", "0xabc")

	ev := <-ch
	assert.Equal(t, model.LifecycleTxSubmitted, ev.Type)
	assert.Equal(t, "0xabc", ev.TxHash)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	b.Publish(model.LifecycleTxDropped, "tx.dropped", "dropped", "0xabc")
}

type recorder struct {
	events []model.LifecycleEventType
	keys   []string
}

func (r *recorder) Publish(eventType model.LifecycleEventType, messageKey, _, _ string) {
	r.events = append(r.events, eventType)
	r.keys = append(r.keys, messageKey)
}

func TestFail(t *testing.T) {
	tests := []struct {
		err  error
		want model.LifecycleEventType
	}{
		{model.NewNoProviderError(), model.LifecycleConnectionFailed},
		{model.NewNotConnectedError(), model.LifecycleValidationError},
		{model.NewInvalidPriceError("x", "bad"), model.LifecycleValidationError},
		{model.NewUserRejectedError("transaction signature"), model.LifecycleTxFailed},
		{model.NewTransactionInFlightError(""), model.LifecycleTxFailed},
		{model.NewCallRevertedError("", nil), model.LifecycleTxFailed},
		{model.NewCallRevertedError("0x01", nil), model.LifecycleTxReverted},
		{model.NewDroppedError("0x01"), model.LifecycleTxDropped},
		{errors.New("socket closed"), model.LifecycleTxFailed},
	}

	for _, tt := range tests {
		r := &recorder{}
		Fail(r, tt.err)
		require.Len(t, r.events, 1, "%v", tt.err)
		assert.Equal(t, tt.want, r.events[0], "%v", tt.err)
		assert.NotEmpty(t, r.keys[0])
	}

	r := &recorder{}
	Fail(r, nil)
	assert.Empty(t, r.events)
}
