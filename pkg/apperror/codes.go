package apperror

// Code identifies a class of failure.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// Swap negotiation
const (
	CodeInvalidParameters Code = "INVALID_PARAMETERS"
	CodeSwapInProgress    Code = "SWAP_IN_PROGRESS"
	CodeQuoteFailed       Code = "QUOTE_FAILED"
	CodeSettlementTimeout Code = "SETTLEMENT_TIMEOUT"
)

// Broker transport
const (
	CodeBrokerConnectionFailed Code = "BROKER_CONNECTION_FAILED"
	CodeBrokerNotConnected     Code = "BROKER_NOT_CONNECTED"
)

// Wallet
const (
	CodeSigningFailed         Code = "SIGNING_FAILED"
	CodeWalletNotConnected    Code = "WALLET_NOT_CONNECTED"
	CodeUnknownWalletProvider Code = "UNKNOWN_WALLET_PROVIDER"
)

// Escrow
const (
	CodeEscrowInitFailed    Code = "ESCROW_INIT_FAILED"
	CodeEscrowDisposeFailed Code = "ESCROW_DISPOSE_FAILED"
)

// Ledger and explorer
const (
	CodeAccountNotFound       Code = "ACCOUNT_NOT_FOUND"
	CodeLedgerRequestFailed   Code = "LEDGER_REQUEST_FAILED"
	CodeExplorerRequestFailed Code = "EXPLORER_REQUEST_FAILED"
)
