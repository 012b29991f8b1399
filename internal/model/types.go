package model

import "math/big"

// Provider is the immutable-key catalog row maintained by the Chain Indexer
// (C1) and served by the Registry Store (C2). Key = on-chain namehash.
type Provider struct {
	Hash         string // namehash, primary key
	ParentHash   string
	Name         string // display name (the Mint label)
	ProviderID   string // arbitrary string chosen by the publisher (~provider-id)
	Wallet       string // settlement address (~wallet)
	Price        string // decimal string, USDC (~price)
	Description  string // ~description
	Site         string // ~site
	Instructions string // ~instructions
}

// FactLabels is the fixed set of Note labels the indexer understands. The
// leading '~' is stripped and '-' replaced with '_' to form the column key.
var FactLabels = map[string]string{
	"~description":  "description",
	"~instructions": "instructions",
	"~price":        "price",
	"~wallet":       "wallet",
	"~provider-id":  "provider_id",
	"~site":         "site",
}

// WalletStorageKind distinguishes plaintext from password-encrypted private
// key storage for a managed wallet.
type WalletStorageKind int

const (
	StoragePlaintext WalletStorageKind = iota
	StorageEncrypted
)

// WalletStorage is the on-disk representation of a hot wallet's key
// material. Ciphertext is only populated when Kind == StorageEncrypted; the
// decrypted key is never part of this struct (it is cached separately, in
// memory only, by the wallet manager).
type WalletStorage struct {
	Kind       WalletStorageKind
	PlainHex   string // hex-encoded private key, only set for StoragePlaintext
	Ciphertext []byte // AES-GCM ciphertext, only set for StorageEncrypted
	Salt       []byte // scrypt salt, only set for StorageEncrypted
	Nonce      []byte // AES-GCM nonce, only set for StorageEncrypted
}

// SpendingLimits is the cached per-wallet spending policy.
type SpendingLimits struct {
	MaxPerCall string // decimal string, optional
	MaxTotal   string // decimal string, optional
	Currency   string // always "USDC" in this implementation, see DESIGN.md
	TotalSpent string // decimal string, recomputed from the Ledger on settlement
}

// ManagedWallet is a hot wallet under operator custody.
type ManagedWallet struct {
	ID      string // address
	Name    string // optional display name
	Storage WalletStorage
	Limits  SpendingLimits
}

// OperatorLinkage is the operator's smart-account (TBA) registry linkage.
type OperatorLinkage struct {
	EntryName string // "grid-wallet.<node>"
	TBA       string // TBA address
	Owner     string // owner address
}

// ClientCapability is the enum of capabilities an authorized client can
// carry. Only "All" exists today; the type exists so a future capability
// can be added without changing the wire shape.
type ClientCapability string

const CapabilityAll ClientCapability = "All"

// ClientStatus is the lifecycle state of an authorized client.
type ClientStatus string

const (
	ClientActive  ClientStatus = "active"
	ClientHalted  ClientStatus = "halted"
)

// AuthorizedClient is a third-party client issued credentials by the
// operator (C5).
type AuthorizedClient struct {
	ID           string
	Name         string
	HotWallet    string // associated hot-wallet address
	TokenHashHex string // hex(SHA-256(bearer token)); the raw token is never stored
	Capability   ClientCapability
	Status       ClientStatus
	Limits       SpendingLimits // cached budget; cumulative total is always rechecked against the Ledger
}

// PaymentOutcome is the sum type recorded on a CallRecord describing how
// payment for that call resolved.
type PaymentOutcomeKind string

const (
	PaymentSuccess       PaymentOutcomeKind = "success"
	PaymentFailed        PaymentOutcomeKind = "failed"
	PaymentSkipped       PaymentOutcomeKind = "skipped"
	PaymentLimitExceeded PaymentOutcomeKind = "limit_exceeded"
)

type PaymentOutcome struct {
	Kind            PaymentOutcomeKind
	TxHash          string // set when Kind == PaymentSuccess
	Amount          string // decimal string
	Currency        string
	Error           string // set when Kind == PaymentFailed
	Reason          string // set when Kind == PaymentSkipped or PaymentLimitExceeded
	Limit           string // set when Kind == PaymentLimitExceeded
	AmountAttempted string // set when Kind == PaymentFailed or PaymentLimitExceeded
}

// CallRecord is one entry in the bounded in-memory ring of recent calls
// (§3, N=500).
type CallRecord struct {
	StartMs      int64
	ResponseMs   int64
	LookupKey    string
	ProviderID   string
	ProviderName string
	Arguments    map[string]string
	Success      bool
	Response     string // raw JSON
	Payment      PaymentOutcome
	DurationMs   int64
	OperatorID   string // operator wallet id used
	ClientID     string // optional
}

// USDCEvent is one ingested Transfer log touching the operator's TBA.
type USDCEvent struct {
	Block    uint64
	TxHash   string
	LogIndex uint
	From     string
	To       string
	Value    *big.Int // smallest units (6 decimals)
}

// USDCCallLedgerRow is the canonical billable atom: exactly one row per
// settled call (§3).
type USDCCallLedgerRow struct {
	TBA                   string
	TxHash                string // unique
	Block                 uint64
	TimeMs                int64
	ClientID              string // nullable: empty string means NULL
	ProviderName          string // nullable
	ProviderAddress       string // nullable
	ProviderCostUnits     *big.Int
	PaymasterDepositUnits *big.Int
	PaymasterRefundUnits  *big.Int
	GasFeesUnits          *big.Int
	TotalCostUnits        *big.Int
}
