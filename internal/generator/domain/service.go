// Package domain defines the alternative generator contract.
package domain

import (
	"context"
	"errors"
)

// Service turns a decision text into the list of alternatives offered to
// the user. Provider failures never surface: the implementation degrades
// to a fixed fallback list and reports the degradation through logs and
// metrics only.
type Service interface {
	Generate(ctx context.Context, text string) ([]string, error)
}

var ErrInvalidText = errors.New("invalid_text")
