package apperror

var messages = map[Code]string{
	CodeInvalidInput:       "Invalid input provided",
	CodeConfigurationError: "Configuration error",
	CodeInternalError:      "Internal error",
	CodeUnknownError:       "An unknown error occurred",

	CodeInvalidParameters: "Swap parameters are incomplete",
	CodeSwapInProgress:    "A swap is already in progress",
	CodeQuoteFailed:       "Failed to obtain a quote",
	CodeSettlementTimeout: "Timed out, your funds will be returned in a few seconds, please wait",

	CodeBrokerConnectionFailed: "Failed to connect to the broker",
	CodeBrokerNotConnected:     "Broker connection is not open",

	CodeSigningFailed:         "Failed to sign transaction using XDR",
	CodeWalletNotConnected:    "Wallet is not connected",
	CodeUnknownWalletProvider: "Unknown wallet provider",

	CodeEscrowInitFailed:    "Failed to initialize escrow account",
	CodeEscrowDisposeFailed: "Failed to dispose escrow account",

	CodeAccountNotFound:       "Account not found",
	CodeLedgerRequestFailed:   "Ledger request failed",
	CodeExplorerRequestFailed: "Failed to fetch data from the server",
}
