// Package utils holds small helpers shared by the storage and service packages.
//
// Storage errors: repositories pass driver errors through StorageError, which turns
// connection failures and timeouts into errors.ErrCodeStorageUnavailable and
// everything else into errors.ErrCodeInternal. IsUniqueViolation detects
// PostgreSQL unique_violation (SQLSTATE 23505).
//
// Log masking: MaskEmail and ShortFingerprint keep personal data and device
// identifiers out of logs.
package utils
