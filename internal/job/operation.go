package job

import (
	"fmt"
	"strings"

	"infergate/internal/apperrors"
)

// Operation names accepted by the operation dispatch endpoint.
type Operation string

const (
	OpSubmitSequence Operation = "submit_sequence"
	OpGetResult      Operation = "get_result"
)

// ParseOperation resolves an operation name to a known Operation.
// Gateway-prefixed names ("toolkit___submit_sequence") are accepted:
// everything up to and including the last "___" is stripped before
// matching.
func ParseOperation(name string) (Operation, error) {
	trimmed := name
	if idx := strings.LastIndex(trimmed, "___"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}

	switch Operation(trimmed) {
	case OpSubmitSequence:
		return OpSubmitSequence, nil
	case OpGetResult:
		return OpGetResult, nil
	}
	return "", apperrors.Validation("UNKNOWN_OPERATION",
		[]string{fmt.Sprintf("unknown operation %q", name)})
}
