// Package rpc implements the ledger boundary over an EVM JSON-RPC
// endpoint: chunk-limited log queries for announcements and deposits, pool
// contract reads, and transaction submission with receipt classification.
package rpc

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/veilprotocol/veil/ledger"
	"github.com/veilprotocol/veil/relay"
	"github.com/veilprotocol/veil/zkproof"
)

// Config locates the pool contract and bounds log queries.
type Config struct {
	Endpoint    string
	PoolAddress common.Address
	// MaxLogRange is the provider's advertised block-window cap for log
	// queries. Zero means unknown; the provider's own rejection then
	// drives narrowing.
	MaxLogRange uint64
	ChainID     *big.Int
}

// ConfigFromEnv reads VEIL_RPC_ENDPOINT, VEIL_POOL_ADDRESS and the
// optional VEIL_MAX_LOG_RANGE / VEIL_CHAIN_ID.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:    os.Getenv("VEIL_RPC_ENDPOINT"),
		PoolAddress: common.HexToAddress(os.Getenv("VEIL_POOL_ADDRESS")),
	}
	if cfg.Endpoint == "" {
		return Config{}, fmt.Errorf("VEIL_RPC_ENDPOINT is not set")
	}
	if v := os.Getenv("VEIL_MAX_LOG_RANGE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid VEIL_MAX_LOG_RANGE: %w", err)
		}
		cfg.MaxLogRange = n
	}
	if v := os.Getenv("VEIL_CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return Config{}, fmt.Errorf("invalid VEIL_CHAIN_ID: %q", v)
		}
		cfg.ChainID = id
	}
	return cfg, nil
}

// Client talks to one pool deployment. It implements
// ledger.AnnouncementSource, ledger.DepositSource, ledger.RootChecker and
// relay.Backend.
type Client struct {
	eth    *ethclient.Client
	cfg    Config
	signer *ecdsa.PrivateKey
	logger zerolog.Logger
}

// Dial connects to the endpoint and resolves the chain id if the config
// leaves it unset.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("error connecting RPC endpoint %s: %w", cfg.Endpoint, err)
	}
	if cfg.ChainID == nil {
		cfg.ChainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("error resolving chain id: %w", err)
		}
	}
	return &Client{eth: eth, cfg: cfg, logger: logger}, nil
}

// WithSigner attaches the key that funds deposits, withdrawals and gas
// top-ups.
func (c *Client) WithSigner(key *ecdsa.PrivateKey) *Client {
	c.signer = key
	return c
}

func (c *Client) Close() {
	c.eth.Close()
}

// LatestBlock returns the current chain head number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// Announcements implements ledger.AnnouncementSource.
func (c *Client) Announcements(ctx context.Context, fromBlock, toBlock uint64) ([]ledger.Announcement, error) {
	logs, err := c.filterLogs(ctx, fromBlock, toBlock, poolABI.Events["Announcement"].ID)
	if err != nil {
		return nil, err
	}
	anns := make([]ledger.Announcement, 0, len(logs))
	for _, lg := range logs {
		ann, err := parseAnnouncement(lg)
		if err != nil {
			c.logger.Warn().Err(err).Str("tx", lg.TxHash.Hex()).Msg("skipping malformed announcement log")
			continue
		}
		anns = append(anns, ann)
	}
	return anns, nil
}

// Deposits implements ledger.DepositSource.
func (c *Client) Deposits(ctx context.Context, fromBlock, toBlock uint64) ([]ledger.Deposit, error) {
	logs, err := c.filterLogs(ctx, fromBlock, toBlock, poolABI.Events["Deposit"].ID)
	if err != nil {
		return nil, err
	}
	deps := make([]ledger.Deposit, 0, len(logs))
	for _, lg := range logs {
		dep, err := parseDeposit(lg)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

func (c *Client) filterLogs(ctx context.Context, fromBlock, toBlock uint64, topic common.Hash) ([]ethtypes.Log, error) {
	if c.cfg.MaxLogRange > 0 && toBlock-fromBlock+1 > c.cfg.MaxLogRange {
		return nil, fmt.Errorf("window %d exceeds configured cap %d: %w",
			toBlock-fromBlock+1, c.cfg.MaxLogRange, ledger.ErrRangeLimited)
	}
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.cfg.PoolAddress},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		if isRangeLimited(err) {
			return nil, fmt.Errorf("%v: %w", err, ledger.ErrRangeLimited)
		}
		return nil, err
	}
	return logs, nil
}

// isRangeLimited treats "query range too large" as a generic retryable
// category. Providers phrase the rejection differently, so this collects
// the known phrasings rather than matching one string.
func isRangeLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"block range",
		"range too large",
		"returned more than",
		"too many results",
		"response size exceeded",
		"limit exceeded",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// IsKnownRoot implements ledger.RootChecker.
func (c *Client) IsKnownRoot(ctx context.Context, root []byte) (bool, error) {
	var ok bool
	err := c.callView(ctx, "isKnownRoot", []interface{}{&ok}, common.BytesToHash(root))
	return ok, err
}

// IsSpent reports whether the nullifier hash is already recorded spent.
func (c *Client) IsSpent(ctx context.Context, nullifierHash []byte) (bool, error) {
	var ok bool
	err := c.callView(ctx, "isSpent", []interface{}{&ok}, common.BytesToHash(nullifierHash))
	return ok, err
}

// PoolInfo reads the pool's static parameters and current leaf count (the
// anonymity-set size).
func (c *Client) PoolInfo(ctx context.Context) (*ledger.PoolInfo, error) {
	info := &ledger.PoolInfo{}

	if err := c.callView(ctx, "token", []interface{}{&info.Token}); err != nil {
		return nil, err
	}
	var denom *big.Int
	if err := c.callView(ctx, "denomination", []interface{}{&denom}); err != nil {
		return nil, err
	}
	var overflow bool
	info.Denomination, overflow = uint256.FromBig(denom)
	if overflow {
		return nil, fmt.Errorf("denomination overflows uint256")
	}
	if err := c.callView(ctx, "nextIndex", []interface{}{&info.NextIndex}); err != nil {
		return nil, err
	}
	if err := c.callView(ctx, "bridgeAddress", []interface{}{&info.BridgeAddress}); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) callView(ctx context.Context, method string, out []interface{}, args ...interface{}) error {
	calldata, err := poolABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.cfg.PoolAddress, Data: calldata}, nil)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", method, err)
	}
	if err := poolABI.UnpackIntoInterface(out[0], method, res); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return nil
}

// Deposit submits deposit(commitment) with the pool denomination as value
// and waits for it to be mined.
func (c *Client) Deposit(ctx context.Context, commitment []byte, value *uint256.Int) (*ethtypes.Receipt, error) {
	calldata, err := poolABI.Pack("deposit", common.BytesToHash(commitment))
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit call: %w", err)
	}
	return c.sendTx(ctx, c.cfg.PoolAddress, calldata, value.ToBig(), c.signer)
}

// SubmitWithdraw implements relay.Backend. The receipt (and so the tx
// hash) is returned even when the transaction reverted.
func (c *Client) SubmitWithdraw(ctx context.Context, proof *zkproof.Proof, ext *relay.ExtData) (*ethtypes.Receipt, error) {
	calldata, err := poolABI.Pack("withdrawAndBridge",
		proof.ProofBytes,
		common.BytesToHash(proof.Root),
		common.BytesToHash(proof.NullifierHash),
		ext.Fee.ToBig(),
		ext.DestinationChainID,
		ext.Recipient,
		ext.EphemeralPub,
		ext.ViewHint,
		ext.Index,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdrawAndBridge call: %w", err)
	}

	receipt, err := c.sendTx(ctx, c.cfg.PoolAddress, calldata, nil, c.signer)
	if err != nil {
		// Reverts usually surface at gas estimation, before any receipt
		// exists; classify them the same way.
		if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
			err = fmt.Errorf("%v: %w", err, c.classifyWithdrawRevert(ctx, proof))
		}
		return receipt, err
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return receipt, &ledger.TxError{TxHash: receipt.TxHash, Err: c.classifyWithdrawRevert(ctx, proof)}
	}
	return receipt, nil
}

// classifyWithdrawRevert distinguishes the protocol-integrity failures a
// reverted withdrawal can mean. A spent nullifier and an unknown root are
// checked by direct reads; whatever remains is a rejected proof.
func (c *Client) classifyWithdrawRevert(ctx context.Context, proof *zkproof.Proof) error {
	if spent, err := c.IsSpent(ctx, proof.NullifierHash); err == nil && spent {
		return ledger.ErrNullifierSpent
	}
	if known, err := c.IsKnownRoot(ctx, proof.Root); err == nil && !known {
		return ledger.ErrStaleRoot
	}
	return ledger.ErrProofRejected
}

// EnsureGas tops up addr from the funded signer until it holds at least
// min wei, so a freshly recovered stealth wallet can pay for its own
// spend.
func (c *Client) EnsureGas(ctx context.Context, addr common.Address, minBalance *big.Int) error {
	balance, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return err
	}
	if balance.Cmp(minBalance) >= 0 {
		return nil
	}
	if c.signer == nil {
		return fmt.Errorf("%w: %s holds %s wei, needs %s", ledger.ErrInsufficientGas, addr.Hex(), balance, minBalance)
	}

	topUp := new(big.Int).Sub(minBalance, balance)
	c.logger.Info().Str("address", addr.Hex()).Str("amount", topUp.String()).Msg("topping up stealth wallet gas")
	_, err = c.sendTx(ctx, addr, nil, topUp, c.signer)
	return err
}

// SweepNative moves a stealth wallet's native balance to dst, minus the
// transfer gas. If the wallet cannot cover its own gas it is topped up
// from the funded signer first.
func (c *Client) SweepNative(ctx context.Context, stealthKey *ecdsa.PrivateKey, dst common.Address) (*ethtypes.Receipt, error) {
	from := ethcrypto.PubkeyToAddress(stealthKey.PublicKey)

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(int64(params.TxGas)))

	if err := c.EnsureGas(ctx, from, gasCost); err != nil {
		return nil, err
	}
	balance, err := c.eth.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, err
	}

	amount := new(big.Int).Sub(balance, gasCost)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s holds %s wei, transfer costs %s",
			ledger.ErrInsufficientGas, from.Hex(), balance, gasCost)
	}
	return c.sendTx(ctx, dst, nil, amount, stealthKey)
}

func (c *Client) sendTx(ctx context.Context, to common.Address, calldata []byte, value *big.Int, key *ecdsa.PrivateKey) (*ethtypes.Receipt, error) {
	if key == nil {
		return nil, fmt.Errorf("no signing key configured")
	}
	from := ethcrypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: from, To: &to, Value: value, Data: calldata, GasPrice: gasPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.cfg.ChainID), key)
	if err != nil {
		return nil, err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, &ledger.TxError{TxHash: signed.Hash(), Err: err}
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, &ledger.TxError{TxHash: signed.Hash(), Err: err}
	}
	return receipt, nil
}
