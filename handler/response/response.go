package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"parkey-onchain/model"
)

// ErrorBody はエラーレスポンス
type ErrorBody struct {
	Code       string          `json:"code"`
	Kind       model.ErrorKind `json:"kind"`
	Message    string          `json:"message"`
	MessageKey string          `json:"message_key"`
	TxHash     string          `json:"tx_hash,omitempty"`
	Retryable  bool            `json:"retryable"`
}

// JSON はJSONレスポンスを書き込む
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error は分類済みエラーをエラー種類に応じたステータスで返す
func Error(w http.ResponseWriter, err error) {
	var e *model.Error
	if !errors.As(err, &e) {
		e = model.Classify("request", err)
	}
	JSON(w, e.Kind.StatusCode(), ErrorBody{
		Code:       e.Code,
		Kind:       e.Kind,
		Message:    e.Message,
		MessageKey: e.MessageKey,
		TxHash:     e.TxHash,
		Retryable:  e.Kind.Retryable(),
	})
}

// DecodeBody はリクエストボディを読み込む。不正なら InvalidInput
func DecodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return model.NewInvalidInputError("body", err.Error())
	}
	return nil
}
