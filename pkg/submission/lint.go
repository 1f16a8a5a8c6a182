package submission

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/Clever/csvlint"
)

const maxLintErrors = 5

var errMalformed = errors.New("file is not well-formed delimited text")

// lint rejects files whose records do not line up with the header.
func lint(data []byte, delimiter rune) error {
	invalids, _, err := csvlint.Validate(bytes.NewReader(data), delimiter, true)
	if err != nil {
		return ValidationError{reason: fmt.Errorf("%w: %v", errMalformed, err)}
	}
	if len(invalids) == 0 {
		return nil
	}

	var problems []string
	for i, invalid := range invalids {
		if i == maxLintErrors {
			problems = append(problems, fmt.Sprintf("and %d more", len(invalids)-maxLintErrors))
			break
		}
		problems = append(problems, invalid.Error())
	}
	return ValidationError{reason: fmt.Errorf("%w: %s", errMalformed, strings.Join(problems, "; "))}
}
