// Package errors provides structured error handling for ScriptRAG.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage IO errors (file, database)
//   - 3XX: Provider/network errors
//   - 4XX: Validation errors (including structural decode failures)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates file and database persistence errors.
	CategoryStorage Category = "STORAGE"
	// CategoryProvider indicates embedding-provider/network errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation and decode errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreRead    = "ERR_201_STORE_READ"
	ErrCodeStoreWrite   = "ERR_202_STORE_WRITE"
	ErrCodeStoreCorrupt = "ERR_203_STORE_CORRUPT"
	ErrCodeQueryFailed  = "ERR_204_QUERY_FAILED"

	// Provider errors (300-399)
	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeDecodeTooShort     = "ERR_401_DECODE_TOO_SHORT"
	ErrCodeDecodeZeroDim      = "ERR_402_DECODE_ZERO_DIMENSION"
	ErrCodeDecodeDimTooLarge  = "ERR_403_DECODE_DIMENSION_TOO_LARGE"
	ErrCodeDecodeSizeMismatch = "ERR_404_DECODE_SIZE_MISMATCH"
	ErrCodeInvalidQuery       = "ERR_405_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeGenerationFailed   = "ERR_501_GENERATION_FAILED"
	ErrCodeAdapterFailed      = "ERR_502_ADAPTER_FAILED"
	ErrCodeSearchNotSupported = "ERR_503_SEARCH_NOT_SUPPORTED"
	ErrCodeInternal           = "ERR_504_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Provider errors are degradable; config errors abort startup.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryProvider:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code
// may succeed on retry.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable:
		return true
	default:
		return false
	}
}
