package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"parkey-onchain/model"
)

// Backend は KeySigner が使うノードの機能 (*ethclient.Client が満たす)
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeySigner は秘密鍵で署名する Signer の実装
type KeySigner struct {
	backend  Backend
	approver Approver
	logger   log.Logger

	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	sendMu  sync.Mutex // nonce取得から送信までを直列化

	changes event.FeedOf[model.ProviderChange]
}

// NewKeySigner は16進数の秘密鍵から KeySigner を作成する
func NewKeySigner(backend Backend, hexKey string, approver Approver) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}
	return NewKeySignerFromKey(backend, key, approver), nil
}

// NewKeySignerFromKey は ecdsa の鍵から KeySigner を作成する
func NewKeySignerFromKey(backend Backend, key *ecdsa.PrivateKey, approver Approver) *KeySigner {
	if approver == nil {
		approver = AutoApprove{}
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &KeySigner{
		backend:  backend,
		approver: approver,
		key:      key,
		address:  address,
		logger:   log.New("component", "key-signer"),
	}
}

// RequestAccounts は承認されれば署名アカウントを返す
func (s *KeySigner) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	key, address := s.current()
	if key == nil {
		return nil, model.NewConnectionFailedError("signer has no unlocked account", nil)
	}
	if !s.approver.ApproveConnect(ctx, address) {
		return nil, model.NewUserRejectedError("connection request")
	}
	return []common.Address{address}, nil
}

// ChainID はノードのチェーンIDを返す
func (s *KeySigner) ChainID(ctx context.Context) (uint64, error) {
	id, err := s.backend.ChainID(ctx)
	if err != nil {
		return 0, model.NewNetworkError("get chain id", err)
	}
	return id.Uint64(), nil
}

// SendTransaction はガスを見積もり、EIP-1559 (未対応チェーンではレガシー) トランザクションに署名して送信する
func (s *KeySigner) SendTransaction(ctx context.Context, call model.CallRequest) (common.Hash, error) {
	key, from := s.current()
	if key == nil {
		return common.Hash{}, model.NewNotConnectedError()
	}
	if !s.approver.ApproveTransaction(ctx, from, call) {
		return common.Hash{}, model.NewUserRejectedError("transaction signature")
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	to := call.To

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, model.NewNetworkError("get chain id", err)
	}

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  call.Data,
	})
	if err != nil {
		// 見積もり時のrevertは送信前にコントラクトが拒否したもの
		return common.Hash{}, model.Classify("estimate gas", err)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, model.NewNetworkError("get nonce", err)
	}

	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, model.NewNetworkError("get latest header", err)
	}

	var txData types.TxData
	if header.BaseFee != nil {
		tip, err := s.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, model.NewNetworkError("suggest gas tip", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(header.BaseFee, big.NewInt(2)))
		txData = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      call.Data,
		}
	} else {
		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, model.NewNetworkError("suggest gas price", err)
		}
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     call.Data,
		}
	}

	signed, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, model.Classify("send transaction", err)
	}

	s.logger.Info("Transaction sent", "hash", signed.Hash().Hex(), "from", from.Hex(), "to", to.Hex(), "nonce", nonce, "gas", gas, "value", value)
	return signed.Hash(), nil
}

// SubscribeChanges はアカウント/ネットワーク変更を購読する
func (s *KeySigner) SubscribeChanges(ch chan<- model.ProviderChange) event.Subscription {
	return s.changes.Subscribe(ch)
}

// Lock は鍵を破棄し、アカウント削除を通知する (ウォレットのロックに相当)
func (s *KeySigner) Lock() {
	s.mu.Lock()
	s.key = nil
	s.address = common.Address{}
	s.mu.Unlock()

	s.logger.Info("Signer locked")
	s.changes.Send(model.ProviderChange{Kind: model.ChangeAccounts})
}

// SwitchAccount は署名鍵を差し替え、アカウント変更を通知する
func (s *KeySigner) SwitchAccount(key *ecdsa.PrivateKey) error {
	if key == nil {
		return errors.New("key is required")
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	s.mu.Lock()
	s.key = key
	s.address = address
	s.mu.Unlock()

	s.logger.Info("Signer account switched", "new", address.Hex())
	s.changes.Send(model.ProviderChange{Kind: model.ChangeAccounts, Accounts: []common.Address{address}})
	return nil
}

// NotifyChainChanged はネットワーク変更を通知する
func (s *KeySigner) NotifyChainChanged(ctx context.Context) error {
	id, err := s.ChainID(ctx)
	if err != nil {
		return err
	}
	s.changes.Send(model.ProviderChange{Kind: model.ChangeChain, ChainID: id})
	return nil
}

func (s *KeySigner) current() (*ecdsa.PrivateKey, common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.address
}
