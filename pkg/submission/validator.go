package submission

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	errEmptyFile        = errors.New("file is empty")
	errMissingName      = errors.New("file name required")
	errInvalidExtension = errors.New("unsupported file extension")
	errTooLarge         = errors.New("file exceeds maximum upload size")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Validator struct {
	allowedExtensions map[string]struct{}
	maxBytes          int64
}

func NewValidator(extensions []string, maxBytes int64) *Validator {
	allowed := make(map[string]struct{})
	for _, ext := range extensions {
		ext = strings.TrimSpace(strings.ToLower(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &Validator{allowedExtensions: allowed, maxBytes: maxBytes}
}

func (v *Validator) Validate(fileName string, size int64) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}
	if strings.TrimSpace(fileName) == "" {
		return ValidationError{reason: errMissingName}
	}
	if size == 0 {
		return ValidationError{reason: errEmptyFile}
	}
	if v.maxBytes > 0 && size > v.maxBytes {
		return ValidationError{reason: fmt.Errorf("%d bytes: %w", size, errTooLarge)}
	}
	if len(v.allowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(fileName))
		if _, ok := v.allowedExtensions[ext]; !ok {
			return ValidationError{reason: fmt.Errorf("'%s': %w", ext, errInvalidExtension)}
		}
	}
	return nil
}
