// Command balance prints the balance of an account on the configured network.
//
//	balance [address]
//
// Without an argument it uses the address of SIGNER_PRIVATE_KEY.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"parkey-onchain/config"
	"parkey-onchain/gateway/balance"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Crit("Failed to load configuration", "err", err)
	}
	log.SetDefault(config.NewLogger(cfg.Logging, os.Stderr))

	if cfg.Chain.RPCURL == "" {
		log.Crit("RPC_URL environment variable not set")
	}

	account, err := resolveAccount(os.Args[1:], cfg.Signer.PrivateKey)
	if err != nil {
		log.Crit("No account to query", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Crit("Failed to connect to network", "url", cfg.Chain.RPCURL, "err", err)
	}
	defer client.Close()

	b, err := balance.NewEthGateway(client).GetBalance(ctx, account)
	if err != nil {
		log.Crit("Failed to get balance", "account", account, "err", err)
	}
	fmt.Printf("Balance of %s: %s ETH\n", b.Account, b.Ether)
}

func resolveAccount(args []string, hexKey string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if hexKey == "" {
		return "", errors.New("pass an address or set SIGNER_PRIVATE_KEY")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid SIGNER_PRIVATE_KEY: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
