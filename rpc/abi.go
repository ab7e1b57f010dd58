package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/veilprotocol/veil/ledger"
)

// poolABIJSON covers the pool contract surface the client drives: the
// deposit/withdraw entry points, the read accessors and the two event
// streams the scanner and proof builder replay.
const poolABIJSON = `[
  {"type":"event","name":"Announcement","inputs":[
    {"name":"stealthAddress","type":"address","indexed":true},
    {"name":"ephemeralPub","type":"bytes","indexed":false},
    {"name":"viewHint","type":"bytes","indexed":false},
    {"name":"index","type":"uint32","indexed":false},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"symbol","type":"string","indexed":false}]},
  {"type":"event","name":"Deposit","inputs":[
    {"name":"commitment","type":"bytes32","indexed":true},
    {"name":"leafIndex","type":"uint32","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"function","name":"deposit","stateMutability":"payable","inputs":[
    {"name":"commitment","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"withdrawAndBridge","stateMutability":"nonpayable","inputs":[
    {"name":"proof","type":"bytes"},
    {"name":"root","type":"bytes32"},
    {"name":"nullifierHash","type":"bytes32"},
    {"name":"fee","type":"uint256"},
    {"name":"destinationChain","type":"uint64"},
    {"name":"recipient","type":"address"},
    {"name":"ephemeralPub","type":"bytes"},
    {"name":"viewHint","type":"bytes"},
    {"name":"index","type":"uint32"}],"outputs":[]},
  {"type":"function","name":"isKnownRoot","stateMutability":"view","inputs":[
    {"name":"root","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"isSpent","stateMutability":"view","inputs":[
    {"name":"nullifierHash","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"denomination","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"nextIndex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint32"}]},
  {"type":"function","name":"bridgeAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid pool ABI: %v", err))
	}
	return parsed
}

var poolABI = mustParseABI()

func parseAnnouncement(lg ethtypes.Log) (ledger.Announcement, error) {
	values, err := poolABI.Unpack("Announcement", lg.Data)
	if err != nil {
		return ledger.Announcement{}, fmt.Errorf("failed to unpack Announcement log: %w", err)
	}
	if len(values) != 5 {
		return ledger.Announcement{}, fmt.Errorf("unexpected Announcement arity %d", len(values))
	}
	if len(lg.Topics) < 2 {
		return ledger.Announcement{}, fmt.Errorf("announcement log missing indexed address topic")
	}

	amount, overflow := uint256.FromBig(values[3].(*big.Int))
	if overflow {
		return ledger.Announcement{}, fmt.Errorf("announcement amount overflows uint256")
	}

	return ledger.Announcement{
		EphemeralPub: values[0].([]byte),
		ViewHint:     values[1].([]byte),
		Address:      common.BytesToAddress(lg.Topics[1].Bytes()),
		Index:        values[2].(uint32),
		Amount:       amount,
		Symbol:       values[4].(string),
		BlockNumber:  lg.BlockNumber,
		TxHash:       lg.TxHash,
	}, nil
}

func parseDeposit(lg ethtypes.Log) (ledger.Deposit, error) {
	values, err := poolABI.Unpack("Deposit", lg.Data)
	if err != nil {
		return ledger.Deposit{}, fmt.Errorf("failed to unpack Deposit log: %w", err)
	}
	if len(values) != 2 {
		return ledger.Deposit{}, fmt.Errorf("unexpected Deposit arity %d", len(values))
	}
	if len(lg.Topics) < 2 {
		return ledger.Deposit{}, fmt.Errorf("deposit log missing indexed commitment topic")
	}

	return ledger.Deposit{
		Commitment:  lg.Topics[1].Bytes(),
		LeafIndex:   values[0].(uint32),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
	}, nil
}
