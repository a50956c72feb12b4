package escrow

// Code is a machine-readable error code.
type Code string

const (
	// Lifecycle order violations
	CodeMatchInactive         Code = "MATCH_INACTIVE"
	CodeMatchStillActive      Code = "MATCH_STILL_ACTIVE"
	CodeMatchFinalized        Code = "MATCH_FINALIZED"
	CodeMatchAlreadyFinalized Code = "MATCH_ALREADY_FINALIZED"
	CodeMatchNotFinalized     Code = "MATCH_NOT_FINALIZED"
	CodeRegistrationClosed    Code = "REGISTRATION_CLOSED"

	CodeUnauthorized Code = "UNAUTHORIZED"

	// Funds
	CodeInsufficientPoolFunds Code = "INSUFFICIENT_POOL_FUNDS"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeCapacityExceeded      Code = "CAPACITY_EXCEEDED"
	CodeArithmeticOverflow    Code = "ARITHMETIC_OVERFLOW"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeInvalidReceiver       Code = "INVALID_RECEIVER"

	// Resolution and external failures
	CodeWinnerAccountNotFound Code = "WINNER_ACCOUNT_NOT_FOUND"
	CodePoolNotEmpty          Code = "POOL_NOT_EMPTY"
	CodeTokenTransferError    Code = "TOKEN_TRANSFER_ERROR"
	CodeSettlementError       Code = "SETTLEMENT_ERROR"

	// Records
	CodeInvalidMatchID     Code = "INVALID_MATCH_ID"
	CodeMatchNotFound      Code = "MATCH_NOT_FOUND"
	CodeMatchExists        Code = "MATCH_EXISTS"
	CodeAccountNotFound    Code = "ACCOUNT_NOT_FOUND"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	// Delegation
	CodeAccountDelegated Code = "ACCOUNT_DELEGATED"
	CodeNotDelegated     Code = "NOT_DELEGATED"
	CodeAlreadyDelegated Code = "ALREADY_DELEGATED"
	CodeRollupOnly       Code = "ROLLUP_ONLY"
)

// Error is the escrow error type. Two errors match under errors.Is when
// their codes are equal.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with a code that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons.
var (
	ErrMatchInactive         = New(CodeMatchInactive, "match is inactive")
	ErrMatchStillActive      = New(CodeMatchStillActive, "match is still active")
	ErrMatchFinalized        = New(CodeMatchFinalized, "match is finalized")
	ErrMatchAlreadyFinalized = New(CodeMatchAlreadyFinalized, "match is already finalized")
	ErrMatchNotFinalized     = New(CodeMatchNotFinalized, "match not finalized")
	ErrRegistrationClosed    = New(CodeRegistrationClosed, "registration is closed")
	ErrUnauthorized          = New(CodeUnauthorized, "unauthorized")
	ErrInsufficientPoolFunds = New(CodeInsufficientPoolFunds, "insufficient funds in the pool")
	ErrInsufficientBalance   = New(CodeInsufficientBalance, "insufficient balance for transfer")
	ErrCapacityExceeded      = New(CodeCapacityExceeded, "deposit capacity exceeded")
	ErrArithmeticOverflow    = New(CodeArithmeticOverflow, "arithmetic overflow")
	ErrInvalidAmount         = New(CodeInvalidAmount, "amount must be positive")
	ErrInvalidReceiver       = New(CodeInvalidReceiver, "receiver is required")
	ErrWinnerAccountNotFound = New(CodeWinnerAccountNotFound, "winner account not found")
	ErrPoolNotEmpty          = New(CodePoolNotEmpty, "pool not empty")
	ErrTokenTransfer         = New(CodeTokenTransferError, "token transfer error")
	ErrSettlement            = New(CodeSettlementError, "settlement error")
	ErrInvalidMatchID        = New(CodeInvalidMatchID, "invalid match id")
	ErrMatchNotFound         = New(CodeMatchNotFound, "match not found")
	ErrMatchExists           = New(CodeMatchExists, "match already exists")
	ErrAccountNotFound       = New(CodeAccountNotFound, "account not found")
	ErrInvariantViolation    = New(CodeInvariantViolation, "ledger invariant violated")
	ErrAccountDelegated      = New(CodeAccountDelegated, "account is delegated to the rollup")
	ErrNotDelegated          = New(CodeNotDelegated, "account is not delegated")
	ErrAlreadyDelegated      = New(CodeAlreadyDelegated, "account is already delegated")
	ErrRollupOnly            = New(CodeRollupOnly, "operation is only available in the rollup context")
)
