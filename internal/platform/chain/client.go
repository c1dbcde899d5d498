// Package chain implements the on-chain collaborators of the fill engine:
// an RPC client, the ERC20 collateral token, and the deployed settlement
// contract. All monetary values cross this boundary as domain.Amount.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ClientConfig holds RPC endpoint parameters.
type ClientConfig struct {
	RPCURL         string
	ChainID        int64
	ConfirmTimeout time.Duration
}

// Client wraps an ethclient connection with the chain id pinned at dial
// time. A node reporting a different chain id than configured is a wiring
// error (wrong RPC URL) and is rejected immediately rather than letting
// signed transactions fail later.
type Client struct {
	eth            *ethclient.Client
	chainID        *big.Int
	confirmTimeout time.Duration
}

// New dials the RPC endpoint and verifies the node's chain id against cfg.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: read chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: node reports chain id %d, config expects %d", chainID.Int64(), cfg.ChainID)
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		eth:            eth,
		chainID:        chainID,
		confirmTimeout: timeout,
	}, nil
}

// Eth returns the underlying ethclient for raw calls.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// ChainID returns the chain id verified at dial time.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Ping checks connectivity by reading the latest block number.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.eth.BlockNumber(ctx); err != nil {
		return fmt.Errorf("chain: ping: %w", err)
	}
	return nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Wallet holds the operator's signing key for transactions. The same key
// signs offers (via internal/crypto) and transactions; this type covers the
// transaction side only.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewWallet parses a hex-encoded secp256k1 private key.
func NewWallet(privateKeyHex string) (*Wallet, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}
	return &Wallet{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the wallet's Ethereum address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// transactOpts builds signing options bound to ctx for one transaction.
func (c *Client) transactOpts(ctx context.Context, w *Wallet) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// waitMined blocks until the transaction is mined or the confirmation
// timeout elapses, then checks the receipt status. There is no retry here:
// a failed or timed-out transaction surfaces to the caller as-is.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("chain: wait for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("chain: tx %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
