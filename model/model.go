package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ===============================================
// セッション関連のモデル
// ===============================================

// ConnectionState はウォレット接続の状態を表す列挙型
type ConnectionState string

const (
	StateDisconnected     ConnectionState = "DISCONNECTED"      // 未接続
	StateConnecting       ConnectionState = "CONNECTING"        // 接続要求中
	StateConnected        ConnectionState = "CONNECTED"         // 接続済み
	StateConnectionFailed ConnectionState = "CONNECTION_FAILED" // 接続失敗 (再接続するまで維持)
)

// Session はウォレット接続のローカルな記録
// session.Provider だけが変更し、他のコンポーネントにはコピーを渡す
type Session struct {
	State   ConnectionState `json:"state"`
	Account string          `json:"account,omitempty"`  // 空文字 = 未取得
	ChainID uint64          `json:"chain_id,omitempty"` // 0 = 未取得
}

// IsConnected はセッションが署名可能な状態かを返す
func (s Session) IsConnected() bool {
	return s.State == StateConnected && s.Account != ""
}

// AccountAddress はアカウントを common.Address として返す
func (s Session) AccountAddress() common.Address {
	return common.HexToAddress(s.Account)
}

// ChangeKind は署名プロバイダから通知される変更の種類
type ChangeKind string

const (
	ChangeAccounts ChangeKind = "accountsChanged"
	ChangeChain    ChangeKind = "chainChanged"
)

// ProviderChange は署名プロバイダが発行するアカウント/ネットワーク変更イベント
type ProviderChange struct {
	Kind     ChangeKind
	Accounts []common.Address // ChangeAccounts のとき有効。空 = アカウント削除
	ChainID  uint64           // ChangeChain のとき有効
}

// ===============================================
// 出品関連のモデル
// ===============================================

// SpotType は駐車場の種類
type SpotType string

const (
	SpotCovered     SpotType = "covered"
	SpotOutdoor     SpotType = "outdoor"
	SpotUnderground SpotType = "underground"
)

// SpotSize は駐車場のサイズ
type SpotSize string

const (
	SizeStandard SpotSize = "standard"
	SizeLarge    SpotSize = "large"
	SizeCompact  SpotSize = "compact"
)

// ParseSpotType は文字列を SpotType に変換する。空文字は covered とみなす
func ParseSpotType(s string) (SpotType, error) {
	switch SpotType(s) {
	case "":
		return SpotCovered, nil
	case SpotCovered, SpotOutdoor, SpotUnderground:
		return SpotType(s), nil
	}
	return "", NewInvalidInputError("spot_type", "must be one of covered, outdoor, underground")
}

// ParseSpotSize は文字列を SpotSize に変換する。空文字は standard とみなす
func ParseSpotSize(s string) (SpotSize, error) {
	switch SpotSize(s) {
	case "":
		return SizeStandard, nil
	case SizeStandard, SizeLarge, SizeCompact:
		return SpotSize(s), nil
	}
	return "", NewInvalidInputError("size", "must be one of standard, large, compact")
}

// ListingRequest は出品作成の入力
type ListingRequest struct {
	Address         string `json:"address"`
	SpotType        string `json:"spot_type"`
	Size            string `json:"size"`
	Price           string `json:"price"` // ETH単位の10進数文字列 (例: "0.05")
	AlwaysAvailable bool   `json:"always_available"`
	MetadataURI     string `json:"metadata_uri"`
}

// Listing はコントラクトから取得した出品情報 (読み取りモデル)
type Listing struct {
	TokenID         *big.Int `json:"token_id"`
	Owner           string   `json:"owner"`
	Address         string   `json:"address"`
	SpotType        SpotType `json:"spot_type"`
	Size            SpotSize `json:"size"`
	PriceWei        *big.Int `json:"price_wei"`
	AlwaysAvailable bool     `json:"always_available"`
	Available       bool     `json:"available"`
}

// ===============================================
// トランザクション関連のモデル
// ===============================================

// CallRequest は署名プロバイダに渡すコントラクト呼び出し
type CallRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int // nil = 0
}

// TxKind はユーザー操作の種類
type TxKind string

const (
	TxCreateListing TxKind = "CreateListing"
	TxBuyListing    TxKind = "BuyListing"
	TxSetPrice      TxKind = "SetPrice"
)

// TxStatus はトランザクションのライフサイクル状態
type TxStatus string

const (
	TxSubmitted TxStatus = "SUBMITTED" // 署名済み・送信済み
	TxConfirmed TxStatus = "CONFIRMED" // 取り込まれ、成功
	TxReverted  TxStatus = "REVERTED"  // 取り込まれたがコントラクトが拒否
	TxDropped   TxStatus = "DROPPED"   // 待機時間内に取り込まれなかった
)

// IsTerminal は終端状態かを返す
func (s TxStatus) IsTerminal() bool {
	return s == TxConfirmed || s == TxReverted || s == TxDropped
}

// PendingTransaction は追跡中のトランザクション
type PendingTransaction struct {
	Hash        common.Hash `json:"hash"`
	Kind        TxKind      `json:"kind"`
	Status      TxStatus    `json:"status"`
	TokenID     *big.Int    `json:"token_id,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// TxResult はマーケットプレイス操作の結果
type TxResult struct {
	Transaction PendingTransaction `json:"transaction"`
	BlockNumber uint64             `json:"block_number,omitempty"`
	GasUsed     uint64             `json:"gas_used,omitempty"`
	// Refetch はキャッシュが古くなったため再取得すべきトークン
	Refetch []*big.Int `json:"refetch,omitempty"`
}

// TxVerification はトランザクション検証結果
type TxVerification struct {
	TxHash         string `json:"tx_hash"`
	Status         string `json:"status"` // "pending", "success", "failed"
	BlockNumber    uint64 `json:"block_number,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
	Success        bool   `json:"success"`
	IsContractCall bool   `json:"is_contract_call"`
	ValueWei       string `json:"value_wei"`
	To             string `json:"to,omitempty"`
}

// Balance はアカウントの残高
type Balance struct {
	Account string   `json:"account"`
	Wei     *big.Int `json:"wei"`
	Ether   string   `json:"ether"`
}

// ===============================================
// スマートコントラクトイベント
// ===============================================

// EventType はコントラクトイベントの種類
type EventType string

const (
	EventSpotCreated EventType = "ParkingSpotCreated"
	EventSpotSold    EventType = "ParkingSpotSold"
	EventSpotListed  EventType = "ParkingSpotListed"
)

// ContractEvent はコントラクトイベントを表す
type ContractEvent struct {
	Type     EventType `json:"type"`
	TxHash   string    `json:"tx_hash"`
	BlockNo  uint64    `json:"block_number"`
	TokenID  *big.Int  `json:"token_id"`
	Owner    string    `json:"owner,omitempty"`
	Seller   string    `json:"seller,omitempty"`
	Buyer    string    `json:"buyer,omitempty"`
	Location string    `json:"location,omitempty"`
	PriceWei *big.Int  `json:"price_wei,omitempty"`
}

// ===============================================
// UIアダプタ向けライフサイクルイベント
// ===============================================

// LifecycleEventType はUIへ通知するイベントの種類
type LifecycleEventType string

const (
	LifecycleConnecting       LifecycleEventType = "connecting"
	LifecycleConnected        LifecycleEventType = "connected"
	LifecycleDisconnected     LifecycleEventType = "disconnected"
	LifecycleConnectionFailed LifecycleEventType = "connection_failed"
	LifecycleTxSubmitted      LifecycleEventType = "tx_submitted"
	LifecycleTxConfirmed      LifecycleEventType = "tx_confirmed"
	LifecycleTxReverted       LifecycleEventType = "tx_reverted"
	LifecycleTxDropped        LifecycleEventType = "tx_dropped"
	LifecycleValidationError  LifecycleEventType = "validation_error"
	// LifecycleTxFailed は送信前の失敗 (署名拒否・通信エラー・処理中)
	LifecycleTxFailed LifecycleEventType = "tx_failed"
)

// Severity は通知の表示種別
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// LifecycleEvent はUIアダプタへ渡す通知
type LifecycleEvent struct {
	ID         string             `json:"id"`
	Type       LifecycleEventType `json:"type"`
	Severity   Severity           `json:"severity"`
	MessageKey string             `json:"message_key"`
	Message    string             `json:"message"`
	TxHash     string             `json:"tx_hash,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}
