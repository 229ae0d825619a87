package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Authorization errors
	ErrUnauthorized      = errors.New("participant is not in the private allow-list")
	ErrUnauthorizedOwner = errors.New("caller is not the registry owner")
	ErrSelfVote          = errors.New("voter cannot judge their own membership")

	// Sequencing errors
	ErrAlreadyJoined             = errors.New("participant has already joined the challenge")
	ErrAlreadyClaimed            = errors.New("stake has already been claimed")
	ErrAlreadyVoted              = errors.New("voter has already voted for this member")
	ErrChallengeAlreadyStarted   = errors.New("challenge has already started")
	ErrChallengeNotEnded         = errors.New("challenge has not ended")
	ErrVerificationWindowExpired = errors.New("verification window has expired")
	ErrUnderVerification         = errors.New("challenge is under verification")
	ErrChallengeExists           = errors.New("challenge id already exists")
	ErrRegistryInitialized       = errors.New("registry is already initialized")
	ErrRegistryNotInitialized    = errors.New("registry is not initialized")

	// Validation errors
	ErrInvalidSchedule         = errors.New("start must be in the future and end after start")
	ErrEmptyAllowList          = errors.New("private challenge requires a non-empty allow-list")
	ErrAllowListTooLong        = errors.New("allow-list exceeds 10 identities")
	ErrInvalidVerificationType = errors.New("verification type does not match the challenge goal")
	ErrInvalidStake            = errors.New("stake per participant must be positive")
	ErrInvalidGoal             = errors.New("unknown goal kind")
	ErrFieldTooLong            = errors.New("field exceeds maximum length")
	ErrInvalidIdentity         = errors.New("identity must not be empty")
	ErrOutOfRange              = errors.New("value exceeds the storable range")

	// Eligibility errors
	ErrDidNotParticipate = errors.New("participant did not join the challenge")
	ErrNotCompleted      = errors.New("participant has not completed the challenge")

	// Lookup errors
	ErrChallengeNotFound = errors.New("challenge not found")

	// Custody errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDecimalsMismatch  = errors.New("transfer scale does not match token decimals")
	ErrInvalidAmount     = errors.New("transfer amount must be positive")
	ErrSelfTransfer      = errors.New("transfer source and destination are the same account")
)

// ─── Categories ─────────────────────────────────────────────────────────────

// Category groups rejections for callers that map them to transport codes.
type Category string

const (
	CategoryNone          Category = ""
	CategoryAuthorization Category = "AUTHORIZATION"
	CategorySequencing    Category = "SEQUENCING"
	CategoryValidation    Category = "VALIDATION"
	CategoryEligibility   Category = "ELIGIBILITY"
	CategoryNotFound      Category = "NOT_FOUND"
	CategoryCustody       Category = "CUSTODY"
)

var categories = []struct {
	cat  Category
	errs []error
}{
	{CategoryAuthorization, []error{ErrUnauthorized, ErrUnauthorizedOwner, ErrSelfVote}},
	{CategorySequencing, []error{
		ErrAlreadyJoined, ErrAlreadyClaimed, ErrAlreadyVoted, ErrChallengeAlreadyStarted,
		ErrChallengeNotEnded, ErrVerificationWindowExpired, ErrUnderVerification,
		ErrChallengeExists, ErrRegistryInitialized, ErrRegistryNotInitialized,
	}},
	{CategoryValidation, []error{
		ErrInvalidSchedule, ErrEmptyAllowList, ErrAllowListTooLong, ErrInvalidVerificationType,
		ErrInvalidStake, ErrInvalidGoal, ErrFieldTooLong, ErrInvalidIdentity, ErrOutOfRange,
	}},
	{CategoryEligibility, []error{ErrDidNotParticipate, ErrNotCompleted}},
	{CategoryNotFound, []error{ErrChallengeNotFound}},
	{CategoryCustody, []error{ErrInsufficientFunds, ErrDecimalsMismatch, ErrInvalidAmount, ErrSelfTransfer}},
}

// CategoryOf classifies err. Unknown errors return CategoryNone.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	for _, c := range categories {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.cat
			}
		}
	}
	return CategoryNone
}

// IsRejection reports whether err is a domain rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return CategoryOf(err) != CategoryNone
}
