package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind はエラーの種類
type ErrorKind string

const (
	KindNoProviderAvailable ErrorKind = "NoProviderAvailable"
	KindUserRejected        ErrorKind = "UserRejected"
	KindConnectionFailed    ErrorKind = "ConnectionFailed"
	KindNotConnected        ErrorKind = "NotConnected"
	KindInvalidPrice        ErrorKind = "InvalidPrice"
	KindInvalidInput        ErrorKind = "InvalidInput"
	KindTransactionInFlight ErrorKind = "TransactionInFlight"
	KindCallReverted        ErrorKind = "CallReverted"
	KindNetworkError        ErrorKind = "NetworkError"
	KindDropped             ErrorKind = "Dropped"
)

// ErrorCategory はエラーの分類 (復旧方法が同じもの)
type ErrorCategory string

const (
	CategoryConnection ErrorCategory = "connection"
	CategoryValidation ErrorCategory = "validation"
	CategorySubmission ErrorCategory = "submission"
	CategoryOnChain    ErrorCategory = "on_chain"
	CategoryTransport  ErrorCategory = "transport"
)

// Category はエラー種類の分類を返す
func (k ErrorKind) Category() ErrorCategory {
	switch k {
	case KindNoProviderAvailable, KindUserRejected, KindConnectionFailed, KindNotConnected:
		return CategoryConnection
	case KindInvalidPrice, KindInvalidInput:
		return CategoryValidation
	case KindTransactionInFlight:
		return CategorySubmission
	case KindCallReverted:
		return CategoryOnChain
	default:
		return CategoryTransport
	}
}

// Retryable は同じ操作をそのまま再試行してよいかを返す
// on-chain の拒否は状態を取り直すまで再試行しない
func (k ErrorKind) Retryable() bool {
	switch k.Category() {
	case CategoryValidation, CategoryOnChain:
		return false
	}
	return true
}

// StatusCode はHTTPステータスコードを返す
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindNoProviderAvailable:
		return http.StatusServiceUnavailable
	case KindUserRejected:
		return http.StatusForbidden
	case KindConnectionFailed:
		return http.StatusBadGateway
	case KindNotConnected:
		return http.StatusPreconditionFailed
	case KindInvalidPrice, KindInvalidInput:
		return http.StatusBadRequest
	case KindTransactionInFlight:
		return http.StatusConflict
	case KindCallReverted:
		return http.StatusUnprocessableEntity
	case KindDropped:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Error は分類済みのエラー
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	MessageKey string
	TxHash     string
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is は同じ Kind のエラーを一致とみなす (errors.Is(err, model.ErrNotConnected) が使える)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// 種類ごとの比較用エラー
var (
	ErrNoProviderAvailable = &Error{Kind: KindNoProviderAvailable}
	ErrUserRejected        = &Error{Kind: KindUserRejected}
	ErrConnectionFailed    = &Error{Kind: KindConnectionFailed}
	ErrNotConnected        = &Error{Kind: KindNotConnected}
	ErrInvalidPrice        = &Error{Kind: KindInvalidPrice}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrTransactionInFlight = &Error{Kind: KindTransactionInFlight}
	ErrCallReverted        = &Error{Kind: KindCallReverted}
	ErrNetwork             = &Error{Kind: KindNetworkError}
	ErrDropped             = &Error{Kind: KindDropped}
)

// KindOf はエラーの種類を返す。未分類なら NetworkError
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetworkError
}

// Connection Errors

func NewNoProviderError() *Error {
	return &Error{
		Kind:       KindNoProviderAvailable,
		Code:       "NO_PROVIDER_AVAILABLE",
		Message:    "no signing provider is available",
		MessageKey: "wallet.no_provider",
	}
}

func NewUserRejectedError(action string) *Error {
	return &Error{
		Kind:       KindUserRejected,
		Code:       "USER_REJECTED",
		Message:    fmt.Sprintf("user rejected %s", action),
		MessageKey: "wallet.user_rejected",
	}
}

func NewConnectionFailedError(reason string, cause error) *Error {
	return &Error{
		Kind:       KindConnectionFailed,
		Code:       "CONNECTION_FAILED",
		Message:    reason,
		MessageKey: "wallet.connection_failed",
		Cause:      cause,
	}
}

func NewNotConnectedError() *Error {
	return &Error{
		Kind:       KindNotConnected,
		Code:       "NOT_CONNECTED",
		Message:    "wallet is not connected",
		MessageKey: "wallet.not_connected",
	}
}

// NewWrongNetworkError は接続中のチェーンがデプロイ先と異なる場合のエラー
func NewWrongNetworkError(got, want uint64) *Error {
	return &Error{
		Kind:       KindNotConnected,
		Code:       "WRONG_NETWORK",
		Message:    fmt.Sprintf("wallet is on chain %d, contract is deployed on chain %d", got, want),
		MessageKey: "wallet.wrong_network",
	}
}

// Validation Errors

func NewInvalidPriceError(input string, reason string) *Error {
	return &Error{
		Kind:       KindInvalidPrice,
		Code:       "INVALID_PRICE",
		Message:    fmt.Sprintf("invalid price %q: %s", input, reason),
		MessageKey: "listing.invalid_price",
	}
}

func NewInvalidInputError(param string, reason string) *Error {
	return &Error{
		Kind:       KindInvalidInput,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		MessageKey: "listing.invalid_input",
	}
}

// Submission Errors

func NewTransactionInFlightError(hash string) *Error {
	msg := "another transaction is awaiting approval"
	if hash != "" {
		msg = fmt.Sprintf("transaction %s is still pending", hash)
	}
	return &Error{
		Kind:       KindTransactionInFlight,
		Code:       "TRANSACTION_IN_FLIGHT",
		Message:    msg,
		MessageKey: "tx.in_flight",
		TxHash:     hash,
	}
}

// On-chain Errors

func NewCallRevertedError(hash string, cause error) *Error {
	msg := "contract rejected the call"
	if hash != "" {
		msg = fmt.Sprintf("transaction %s reverted", hash)
	}
	return &Error{
		Kind:       KindCallReverted,
		Code:       "CALL_REVERTED",
		Message:    msg,
		MessageKey: "tx.reverted",
		TxHash:     hash,
		Cause:      cause,
	}
}

// Transport Errors

func NewNetworkError(operation string, cause error) *Error {
	return &Error{
		Kind:       KindNetworkError,
		Code:       "NETWORK_ERROR",
		Message:    fmt.Sprintf("%s failed", operation),
		MessageKey: "network.error",
		Cause:      cause,
	}
}

func NewDroppedError(hash string) *Error {
	return &Error{
		Kind:       KindDropped,
		Code:       "TRANSACTION_DROPPED",
		Message:    fmt.Sprintf("transaction %s was not included within the wait horizon", hash),
		MessageKey: "tx.dropped",
		TxHash:     hash,
	}
}

// Classify は任意のエラーを分類済みエラーに変換する
// 既に *Error ならそのまま返す
func Classify(operation string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if IsUserRejection(err) {
		ue := NewUserRejectedError(operation)
		ue.Cause = err
		return ue
	}
	if IsRevert(err) {
		return NewCallRevertedError("", err)
	}
	return NewNetworkError(operation, err)
}

// IsUserRejection はEIP-1193の拒否 (code 4001) 相当のエラーかを判定する
func IsUserRejection(err error) bool {
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) && coded.ErrorCode() == 4001 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

// IsRevert はノードが実行時のrevertを報告したかを判定する
func IsRevert(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "insufficient funds")
}
