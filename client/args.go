package client

import (
	"errors"
	"fmt"

	"github.com/google/shlex"
)

var ErrUnterminatedQuote = errors.New("unterminated quote")

// SplitArgs splits a console line with shell rules: whitespace separates
// arguments, double quotes group words and allow backslash escapes, single
// quotes group words literally, and an unquoted word starting with # begins
// a comment.
func SplitArgs(line string) ([]string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnterminatedQuote, err)
	}
	return args, nil
}
