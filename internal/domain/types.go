// Package domain holds the storage-shape types shared by the chain client,
// the assembler, and the store: blocks, transactions, and logs as they are
// persisted, plus the canonical hex and big-integer helpers every layer
// converts through on the way in or out.
package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// UBigInt wraps a 256-bit unsigned integer for decimal-string storage.
// gas_used, gas_limit, base_fee_per_gas, value, and gas prices all flow
// through this type so the store never has to own a native big-int column.
type UBigInt struct {
	v *big.Int
}

// NewUBigInt wraps x. A nil x is treated as zero.
func NewUBigInt(x *big.Int) UBigInt {
	if x == nil {
		return UBigInt{v: new(big.Int)}
	}
	return UBigInt{v: new(big.Int).Set(x)}
}

// ParseUBigInt parses a decimal string as produced by String.
func ParseUBigInt(s string) (UBigInt, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return UBigInt{}, fmt.Errorf("domain: invalid decimal integer %q", s)
	}
	return UBigInt{v: v}, nil
}

// String returns the canonical decimal-string serialization.
func (u UBigInt) String() string {
	if u.v == nil {
		return "0"
	}
	return u.v.String()
}

// Big returns the underlying big.Int; callers must not mutate it.
func (u UBigInt) Big() *big.Int {
	if u.v == nil {
		return new(big.Int)
	}
	return u.v
}

// Hash is a canonical lowercase 0x-prefixed 32-byte hex string.
type Hash string

// Address is a canonical lowercase 0x-prefixed 20-byte hex string.
type Address string

// CanonicalHex lowercases a hex string and ensures the 0x prefix.
func CanonicalHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// ValidHashLen reports whether s has the shape of a 32-byte hash: the 0x
// prefix and 66 characters in all. The characters after the prefix are not
// checked to be hex digits.
func ValidHashLen(s string) bool {
	return len(s) == 66 && strings.HasPrefix(s, "0x")
}

// ValidAddressLen reports whether s has the shape of a 20-byte address: the
// 0x prefix and 42 characters in all. The characters after the prefix are
// not checked to be hex digits.
func ValidAddressLen(s string) bool {
	return len(s) == 42 && strings.HasPrefix(s, "0x")
}

// Block is one row of the blocks table.
type Block struct {
	Number        uint64
	Hash          Hash
	ParentHash    Hash
	Timestamp     uint64
	GasUsed       UBigInt
	GasLimit      UBigInt
	BaseFeePerGas *UBigInt // nil pre-EIP-1559
}

// TxStatus mirrors the receipt status field; it is absent on pre-Byzantium receipts.
type TxStatus int

const (
	// StatusUnknown means no receipt status was available (a pre-Byzantium
	// receipt, or a receipt the provider reported missing, in which case the
	// assembler records the transaction without logs).
	StatusUnknown TxStatus = -1
	StatusFailed  TxStatus = 0
	StatusSuccess TxStatus = 1
)

// Transaction is one row of the transactions table.
type Transaction struct {
	Hash                 Hash
	BlockNumber          uint64
	BlockHash            Hash
	TransactionIndex     uint64
	From                 Address
	To                   *Address // nil for contract creation
	Value                UBigInt
	GasPrice             *UBigInt // legacy transactions
	MaxFeePerGas         *UBigInt // EIP-1559
	MaxPriorityFeePerGas *UBigInt // EIP-1559
	GasLimit             UBigInt
	InputData            string // 0x-prefixed hex
	Status               TxStatus
	Logs                 []Log
}

// Log is one row of the logs table, persisted with a stable unique key on
// (TxHash, LogIndex) rather than a surrogate row id.
type Log struct {
	LogIndex         uint64
	TxHash           Hash
	TransactionIndex uint64
	BlockNumber      uint64
	BlockHash        Hash
	Address          Address
	Data             string   // 0x-prefixed hex
	Topics           []Hash   // emission order, 0-4 entries
}

// Topic returns the topic at i, or "" if absent.
func (l Log) Topic(i int) string {
	if i < 0 || i >= len(l.Topics) {
		return ""
	}
	return string(l.Topics[i])
}
