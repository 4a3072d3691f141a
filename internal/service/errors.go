package service

import "fmt"

// Code identifies a service error. The set is closed so callers can
// branch on codes instead of matching message strings.
type Code int

const (
	CodeCurrencyNotFound Code = iota
	CodePairNotFound
	CodeSwapNotFound
	CodeOrderSideNotFound
	CodeNoLightningClient
	CodeNotSupportedBySymbol
	CodeEthereumNotEnabled

	CodeUndefinedParameter
	CodeUnsupportedParameter
	CodeInvalidEthereumAddress
	CodeNotWholeNumber
	CodeInvalidPairHash

	CodeSwapWithPreimageExists
	CodeSwapWithInvoiceExists
	CodeSwapHasInvoiceAlready
	CodeSwapNoLockup
	CodeInvalidInvoiceAmount
	CodeBeneathMinimalAmount
	CodeExceedsMaximalAmount
	CodeOnchainAmountTooLow
	CodeReverseSwapsDisabled
	CodeExceedsMaxInboundLiquidity
	CodeBeneathMinInboundLiquidity
	CodeInvoiceAndOnchainAmount
	CodeNoAmountSpecified
)

// Error is a structured service error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on the code, ignoring message arguments.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func errCurrencyNotFound(symbol string) *Error {
	return newError(CodeCurrencyNotFound, "could not find currency: %s", symbol)
}

func errPairNotFound(pairID string) *Error {
	return newError(CodePairNotFound, "could not find pair: %s", pairID)
}

func errSwapNotFound(id string) *Error {
	return newError(CodeSwapNotFound, "could not find swap with id: %s", id)
}

func errOrderSideNotFound(side string) *Error {
	return newError(CodeOrderSideNotFound, "could not find order side: %s", side)
}

func errNoLightningClient(symbol string) *Error {
	return newError(CodeNoLightningClient, "%s has no Lightning client", symbol)
}

func errNotSupportedBySymbol(symbol string) *Error {
	return newError(CodeNotSupportedBySymbol, "this action is not supported by %s", symbol)
}

func errUndefinedParameter(name string) *Error {
	return newError(CodeUndefinedParameter, "undefined parameter: %s", name)
}

func errUnsupportedParameter(name string) *Error {
	return newError(CodeUnsupportedParameter, "parameter is not supported: %s", name)
}

func errInvalidEthereumAddress(address string) *Error {
	return newError(CodeInvalidEthereumAddress, "could not parse Ethereum address: %s", address)
}

func errNotWholeNumber(value float64) *Error {
	return newError(CodeNotWholeNumber, "%v is not a whole number", value)
}

func errSwapHasInvoiceAlready(id string) *Error {
	return newError(CodeSwapHasInvoiceAlready, "swap %s has an invoice already", id)
}

func errInvalidInvoiceAmount(max uint64) *Error {
	return newError(CodeInvalidInvoiceAmount, "invoice amount exceeds the maximal of %d", max)
}

func errBeneathMinimalAmount(amount, minimal uint64) *Error {
	return newError(CodeBeneathMinimalAmount, "%d is less than minimal of %d", amount, minimal)
}

func errExceedsMaximalAmount(amount, maximal uint64) *Error {
	return newError(CodeExceedsMaximalAmount, "%d exceeds maximal of %d", amount, maximal)
}

func errExceedsMaxInboundLiquidity(liquidity, max uint32) *Error {
	return newError(CodeExceedsMaxInboundLiquidity, "inbound liquidity %d exceeds maximal of %d", liquidity, max)
}

func errBeneathMinInboundLiquidity(liquidity, min uint32) *Error {
	return newError(CodeBeneathMinInboundLiquidity, "inbound liquidity %d is less than minimal of %d", liquidity, min)
}

// Errors without message arguments.
var (
	ErrEthereumNotEnabled = &Error{
		Code:    CodeEthereumNotEnabled,
		Message: "the Ethereum integration is not enabled",
	}
	ErrInvalidPairHash = &Error{
		Code:    CodeInvalidPairHash,
		Message: "invalid pair hash",
	}
	ErrSwapWithPreimageExists = &Error{
		Code:    CodeSwapWithPreimageExists,
		Message: "a swap with this preimage hash exists already",
	}
	ErrSwapWithInvoiceExists = &Error{
		Code:    CodeSwapWithInvoiceExists,
		Message: "a swap with this invoice exists already",
	}
	ErrSwapNoLockup = &Error{
		Code:    CodeSwapNoLockup,
		Message: "no lockup transaction found",
	}
	ErrOnchainAmountTooLow = &Error{
		Code:    CodeOnchainAmountTooLow,
		Message: "onchain amount is too low",
	}
	ErrReverseSwapsDisabled = &Error{
		Code:    CodeReverseSwapsDisabled,
		Message: "reverse swaps are disabled",
	}
	ErrInvoiceAndOnchainAmount = &Error{
		Code:    CodeInvoiceAndOnchainAmount,
		Message: "invoice and onchain amount were specified",
	}
	ErrNoAmountSpecified = &Error{
		Code:    CodeNoAmountSpecified,
		Message: "no amount was specified",
	}
)
