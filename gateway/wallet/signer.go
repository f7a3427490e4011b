package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"parkey-onchain/model"
)

// Signer は署名プロバイダの境界 (ブラウザ拡張のウォレットに相当)
// この能力を持つ実装であれば何でもよい
type Signer interface {
	// RequestAccounts はアカウントへのアクセスを要求する。拒否時は UserRejected
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID は接続中のネットワークIDを返す
	ChainID(ctx context.Context) (uint64, error)

	// SendTransaction は呼び出しに署名して送信し、トランザクションハッシュを返す
	SendTransaction(ctx context.Context, call model.CallRequest) (common.Hash, error)

	// SubscribeChanges はアカウント/ネットワーク変更イベントを購読する
	SubscribeChanges(ch chan<- model.ProviderChange) event.Subscription
}

// Approver はユーザーの承認ステップ
// false を返すと UserRejected になる
type Approver interface {
	ApproveConnect(ctx context.Context, account common.Address) bool
	ApproveTransaction(ctx context.Context, from common.Address, call model.CallRequest) bool
}

// AutoApprove はすべての要求を承認する
type AutoApprove struct{}

func (AutoApprove) ApproveConnect(context.Context, common.Address) bool { return true }

func (AutoApprove) ApproveTransaction(context.Context, common.Address, model.CallRequest) bool {
	return true
}
