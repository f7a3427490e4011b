package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"parkey-onchain/gateway/wallet"
	"parkey-onchain/metrics"
	"parkey-onchain/model"
	"parkey-onchain/usecase/notify"
)

// Provider はセッションの唯一の所有者
// セッションの変更はすべてこの型のメソッドを通る
type Provider struct {
	signer   wallet.Signer
	notifier notify.Notifier
	logger   log.Logger

	connectMu sync.Mutex // Connect を直列化

	mu      sync.RWMutex
	session model.Session

	sub     event.Subscription
	changes chan model.ProviderChange
	done    chan struct{}
}

// NewProvider はセッションを Disconnected で作成する
// signer が nil のときは署名プロバイダが存在しない環境として扱う
func NewProvider(signer wallet.Signer, notifier notify.Notifier) *Provider {
	p := &Provider{
		signer:   signer,
		notifier: notifier,
		logger:   log.New("component", "session"),
		session:  model.Session{State: model.StateDisconnected},
	}
	recordState(model.StateDisconnected)
	return p
}

// Session は現在のセッションのコピーを返す
func (p *Provider) Session() model.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// Active は1回の操作に使う署名プロバイダとセッションを返す
// 呼び出し側は signer を保持してはいけない
func (p *Provider) Active() (wallet.Signer, model.Session, error) {
	s := p.Session()
	if !s.IsConnected() || p.signer == nil {
		return nil, s, model.NewNotConnectedError()
	}
	return p.signer, s, nil
}

// Connect は署名プロバイダへのアクセスを要求する
// 接続済みならそのままセッションを返す
func (p *Provider) Connect(ctx context.Context) (model.Session, error) {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	if s := p.Session(); s.IsConnected() {
		return s, nil
	}

	if p.signer == nil {
		s := model.Session{State: model.StateConnectionFailed}
		p.setState(s)
		return s, p.failed(model.NewNoProviderError())
	}

	p.setState(model.Session{State: model.StateConnecting})
	p.publish(model.LifecycleConnecting, "wallet.connecting", "Connecting wallet")

	s, e := p.request(ctx)
	if e != nil {
		s = model.Session{State: model.StateConnectionFailed}
	}
	// 待機中に Disconnect された試行は結果を書き戻さない
	if !p.transition(model.StateConnecting, s) {
		p.logger.Info("Connect attempt abandoned after disconnect")
		return p.Session(), model.NewNotConnectedError()
	}
	if e != nil {
		return s, p.failed(e)
	}

	p.subscribe()
	metrics.ConnectAttempts.WithLabelValues("connected").Inc()
	p.logger.Info("Wallet connected", "account", s.Account, "chainId", s.ChainID)
	p.publish(model.LifecycleConnected, "wallet.connected", "Wallet connected")
	return s, nil
}

// request はアカウントとチェーンIDを署名プロバイダから取得する
func (p *Provider) request(ctx context.Context) (model.Session, *model.Error) {
	accounts, err := p.signer.RequestAccounts(ctx)
	if err != nil {
		var e *model.Error
		if errors.As(err, &e) && (e.Kind == model.KindUserRejected || e.Kind == model.KindConnectionFailed) {
			return model.Session{}, e
		}
		return model.Session{}, model.NewConnectionFailedError("request accounts failed", err)
	}
	if len(accounts) == 0 {
		return model.Session{}, model.NewConnectionFailedError("signing provider granted no accounts", nil)
	}

	chainID, err := p.signer.ChainID(ctx)
	if err != nil {
		return model.Session{}, model.NewConnectionFailedError("get chain id failed", err)
	}

	return model.Session{
		State:   model.StateConnected,
		Account: accounts[0].Hex(),
		ChainID: chainID,
	}, nil
}

// Disconnect はローカルのセッションを破棄する
// 外部の認可は取り消さない。未接続なら何もしない
func (p *Provider) Disconnect() {
	p.mu.Lock()
	if p.session.State == model.StateDisconnected {
		p.mu.Unlock()
		return
	}
	p.session = model.Session{State: model.StateDisconnected}
	p.mu.Unlock()

	recordState(model.StateDisconnected)
	p.logger.Info("Wallet disconnected")
	p.publish(model.LifecycleDisconnected, "wallet.disconnected", "Wallet disconnected")
}

// Close は変更イベントの購読を終了する
func (p *Provider) Close() {
	p.mu.Lock()
	sub, done := p.sub, p.done
	p.sub, p.done = nil, nil
	p.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		<-done
	}
}

// failed は接続失敗を記録する。拒否も含めて connection_failed として通知する
func (p *Provider) failed(e *model.Error) error {
	metrics.ConnectAttempts.WithLabelValues(string(e.Kind)).Inc()
	p.logger.Warn("Wallet connection failed", "kind", e.Kind, "err", e)
	p.publish(model.LifecycleConnectionFailed, e.MessageKey, e.Message)
	return e
}

func (p *Provider) setState(s model.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	recordState(s.State)
}

// transition は状態が from のままのときだけ s に置き換える
func (p *Provider) transition(from model.ConnectionState, s model.Session) bool {
	p.mu.Lock()
	if p.session.State != from {
		p.mu.Unlock()
		return false
	}
	p.session = s
	p.mu.Unlock()
	recordState(s.State)
	return true
}

// subscribe は購読がなければ変更イベントを購読する (Close 後の再接続でも作り直す)
func (p *Provider) subscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		return
	}
	p.changes = make(chan model.ProviderChange, 16)
	p.done = make(chan struct{})
	p.sub = p.signer.SubscribeChanges(p.changes)
	go p.watch(p.sub, p.changes, p.done)
}

func (p *Provider) watch(sub event.Subscription, changes <-chan model.ProviderChange, done chan struct{}) {
	defer close(done)
	for {
		select {
		case change := <-changes:
			p.apply(change)
		case err, ok := <-sub.Err():
			if ok && err != nil {
				p.logger.Error("Provider change subscription failed", "err", err)
			}
			return
		}
	}
}

// apply は署名プロバイダからの変更をセッションに反映する
func (p *Provider) apply(change model.ProviderChange) {
	p.mu.Lock()
	if p.session.State != model.StateConnected {
		p.mu.Unlock()
		return
	}

	switch change.Kind {
	case model.ChangeAccounts:
		if len(change.Accounts) == 0 {
			p.session = model.Session{State: model.StateDisconnected}
			p.mu.Unlock()
			recordState(model.StateDisconnected)
			p.logger.Info("Provider removed account, session disconnected")
			p.publish(model.LifecycleDisconnected, "wallet.account_removed", "Wallet account removed")
			return
		}
		p.session.Account = change.Accounts[0].Hex()
		account := p.session.Account
		p.mu.Unlock()
		p.logger.Info("Provider switched account", "account", account)
		p.publish(model.LifecycleConnected, "wallet.account_changed", "Wallet account changed")

	case model.ChangeChain:
		p.session.ChainID = change.ChainID
		p.mu.Unlock()
		p.logger.Info("Provider switched network", "chainId", change.ChainID)
		p.publish(model.LifecycleConnected, "wallet.chain_changed", "Wallet network changed")

	default:
		p.mu.Unlock()
	}
}

func (p *Provider) publish(t model.LifecycleEventType, key, message string) {
	if p.notifier != nil {
		p.notifier.Publish(t, key, message, "")
	}
}

var allStates = []model.ConnectionState{
	model.StateDisconnected, model.StateConnecting, model.StateConnected, model.StateConnectionFailed,
}

func recordState(current model.ConnectionState) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.ConnectionState.WithLabelValues(string(s)).Set(v)
	}
}
