package model

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals は 1 ETH = 10^18 wei の桁数
const EtherDecimals = 18

var decimalPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// ParseEther はETH単位の10進数文字列をweiに変換する
// 価格変換はすべてこの関数を通す。失敗は常に InvalidPrice
func ParseEther(s string) (*big.Int, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return nil, NewInvalidPriceError(s, "price is required")
	}
	if strings.HasPrefix(input, "-") {
		return nil, NewInvalidPriceError(s, "price must not be negative")
	}
	if !decimalPattern.MatchString(input) {
		return nil, NewInvalidPriceError(s, "price must be a decimal number")
	}
	if i := strings.IndexByte(input, '.'); i >= 0 && len(input)-i-1 > EtherDecimals {
		return nil, NewInvalidPriceError(s, "price has more than 18 decimal places")
	}

	if strings.HasPrefix(input, ".") {
		input = "0" + input
	}
	input = strings.TrimSuffix(input, ".")

	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, NewInvalidPriceError(s, "price must be a decimal number")
	}
	return d.Shift(EtherDecimals).BigInt(), nil
}

// FormatEther はweiをETH単位の10進数文字列に変換する
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
