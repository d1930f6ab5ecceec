package brokerage

import "fmt"

// VenueErrorCodes maps execution-venue error codes to human-readable messages.
var VenueErrorCodes = map[int]string{
	20000: "EX_SUCCESS",              // No error, success
	20001: "EX_UNKNOWN_ERROR",        // Unknown error
	20002: "EX_INVALID_ARGUMENT",     // Invalid argument (e.g. missing or wrong param)
	20003: "EX_MAINTENANCE_MODE",     // Venue maintenance mode
	20101: "EX_NOTIONAL_TOO_SMALL",   // Dollar amount below minimum
	20102: "EX_NOTIONAL_TOO_LARGE",   // Dollar amount above maximum
	20103: "EX_DUPLICATE_CLIENT_ID",  // Duplicate client order ID
	20301: "EX_UNKNOWN_SYMBOL",       // Ticker not found on venue
	20302: "EX_SYMBOL_DELISTED",      // Ticker delisted
	20303: "EX_SYMBOL_HALTED",        // Trading halted for the ticker
	20304: "EX_FRACTIONAL_DISABLED",  // Symbol not eligible for fractional orders
	20401: "EX_INSUFFICIENT_FUNDS",   // Not enough buying power
	20402: "EX_ACCOUNT_RESTRICTED",   // Account restricted from trading
	20403: "EX_ACCOUNT_NOT_FOUND",    // Account does not exist or is disabled
	20501: "EX_MARKET_CLOSED",        // Outside regular trading hours
	20601: "EX_RATE_LIMITED",         // Too many requests
	20602: "EX_TOO_MANY_ORDERS",      // Too many outstanding orders
}

// fatalCodes cannot succeed on retry; the mapping is rejected with a
// recorded reason instead of being retried forever.
var fatalCodes = map[int]bool{
	20002: true,
	20101: true,
	20102: true,
	20301: true,
	20302: true,
	20304: true,
	20401: true,
	20402: true,
	20403: true,
}

// GetErrorMsg returns a human-readable message for a given venue error code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := VenueErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_VENUE_ERROR_%d", code)
}

// IsFatalCode reports whether a venue error code is terminal. Unknown
// codes are treated as retryable so a new throttle code never rejects a
// mapping by accident.
func IsFatalCode(code int) bool {
	return fatalCodes[code]
}
