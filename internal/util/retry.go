package util

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts, including the first
	InitialWait time.Duration // Wait before the second attempt; doubled each retry
	MaxWait     time.Duration // Upper bound for a single wait
}

// DefaultRetryConfig returns the retry configuration used for content store I/O
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

var retryableErrnos = []syscall.Errno{
	syscall.EAGAIN,
	syscall.EINTR,
	syscall.ETIMEDOUT,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.ECONNREFUSED,
	syscall.ENETDOWN,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
	syscall.EIO,
}

var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"temporary failure",
	"resource temporarily unavailable",
	"too many open files",
	"slowdown",
}

// IsRetryableError reports whether err looks like a transient I/O or network failure
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	// Missing files and permission problems never heal on their own
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrExist) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff runs operation until it succeeds, fails with a
// non-retryable error, or MaxAttempts is reached.
func RetryWithBackoff[T any](cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var (
		result T
		err    error
	)
	wait := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt, cfg.MaxAttempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			return result, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, cfg.MaxAttempts, wait, err)
		time.Sleep(wait)

		wait *= 2
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	WarnLog("Retry: %s failed after %d attempts: %v", operationName, cfg.MaxAttempts, err)
	return result, fmt.Errorf("max retries exceeded (%d attempts): %w", cfg.MaxAttempts, err)
}

// Retry is RetryWithBackoff for operations without a result
func Retry(cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// RetryableMkdirAll creates a directory with retry logic
func RetryableMkdirAll(path string, perm os.FileMode, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return os.MkdirAll(path, perm)
	}, fmt.Sprintf("mkdir(%s)", path))
}

// RetryableReadFile reads a whole file with retry logic
func RetryableReadFile(path string, cfg *RetryConfig) ([]byte, error) {
	return RetryWithBackoff(cfg, func() ([]byte, error) {
		return os.ReadFile(path)
	}, fmt.Sprintf("read(%s)", path))
}
