package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"parkey-onchain/model"
)

// DefaultDismissAfter は通知が自動的に消えるまでの時間
const DefaultDismissAfter = 3 * time.Second

const maxRetained = 100

// Notifier はライフサイクルイベントをUIアダプタへ流す
type Notifier interface {
	Publish(eventType model.LifecycleEventType, messageKey, message, txHash string)
}

// Bus は通知の配信と、表示中の通知の保持を行う
type Bus struct {
	dismissAfter time.Duration
	now          func() time.Time
	logger       log.Logger

	mu     sync.Mutex
	recent []model.LifecycleEvent
	subs   map[int]chan model.LifecycleEvent
	nextID int
}

func NewBus(dismissAfter time.Duration) *Bus {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	return &Bus{
		dismissAfter: dismissAfter,
		now:          time.Now,
		logger:       log.New("component", "notify"),
		subs:         make(map[int]chan model.LifecycleEvent),
	}
}

// Publish はイベントを記録し、購読者へ配信する
// 受信が追いつかない購読者の分は捨てる (tx の進行を止めない)
func (b *Bus) Publish(eventType model.LifecycleEventType, messageKey, message, txHash string) {
	ev := model.LifecycleEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Severity:   severityOf(eventType),
		MessageKey: messageKey,
		Message:    message,
		TxHash:     txHash,
		CreatedAt:  b.now(),
	}

	b.mu.Lock()
	b.recent = append(b.recent, ev)
	if len(b.recent) > maxRetained {
		b.recent = b.recent[len(b.recent)-maxRetained:]
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Dropping notification for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("Lifecycle event", "type", ev.Type, "key", ev.MessageKey, "tx", ev.TxHash)
}

// Subscribe は新しい購読を作成する。cancel で解除する
func (b *Bus) Subscribe(buffer int) (<-chan model.LifecycleEvent, func()) {
	ch := make(chan model.LifecycleEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Active は自動消去されていない通知を古い順に返す
func (b *Bus) Active() []model.LifecycleEvent {
	cutoff := b.now().Add(-b.dismissAfter)

	b.mu.Lock()
	defer b.mu.Unlock()

	active := make([]model.LifecycleEvent, 0, len(b.recent))
	for _, ev := range b.recent {
		if ev.CreatedAt.After(cutoff) {
			active = append(active, ev)
		}
	}
	return active
}

// Fail は分類済みエラーをUIへ通知する
func Fail(n Notifier, err error) {
	if n == nil || err == nil {
		return
	}
	var e *model.Error
	if !errors.As(err, &e) {
		e = model.Classify("operation", err)
	}
	n.Publish(EventForError(e), e.MessageKey, e.Message, e.TxHash)
}

// EventForError はエラー種類に対応するイベントを返す
func EventForError(e *model.Error) model.LifecycleEventType {
	switch e.Kind {
	case model.KindNoProviderAvailable, model.KindConnectionFailed:
		return model.LifecycleConnectionFailed
	case model.KindInvalidPrice, model.KindInvalidInput, model.KindNotConnected:
		return model.LifecycleValidationError
	case model.KindCallReverted:
		if e.TxHash != "" {
			return model.LifecycleTxReverted
		}
		return model.LifecycleTxFailed
	case model.KindDropped:
		return model.LifecycleTxDropped
	default:
		return model.LifecycleTxFailed
	}
}

func severityOf(t model.LifecycleEventType) model.Severity {
	switch t {
	case model.LifecycleConnected, model.LifecycleTxConfirmed:
		return model.SeveritySuccess
	case model.LifecycleConnecting, model.LifecycleDisconnected, model.LifecycleTxSubmitted:
		return model.SeverityInfo
	default:
		return model.SeverityError
	}
}
