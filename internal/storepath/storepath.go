// Package storepath maps job identifiers to their canonical object
// store locations and back.
//
// Every job owns exactly three locations: the input object the backend
// reads, the output object it writes on success, and the failure object
// it writes on error. All three share the job ID as filename stem, so
// a handle can be decomposed without any lookup.
package storepath

import (
	"fmt"
	"regexp"
	"strings"

	"infergate/internal/apperrors"
)

// Kind identifies one of a job's three storage locations.
type Kind int

const (
	KindInput Kind = iota
	KindOutput
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ext returns the filename extension for this kind. Inputs are JSON
// documents; output and failure objects use the backend's .out suffix.
func (k Kind) ext() string {
	if k == KindInput {
		return ".json"
	}
	return ".out"
}

// bucketPattern matches valid bucket names: lowercase alphanumerics and
// hyphens, no leading/trailing hyphen. Length and consecutive-hyphen
// rules are checked separately.
var bucketPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Layout holds the store coordinates all paths resolve against.
type Layout struct {
	Bucket        string
	InputPrefix   string
	OutputPrefix  string
	FailurePrefix string
}

// Validate rejects a layout that could never work: a malformed bucket
// name, a missing prefix, or output and failure prefixes that collide.
// It must pass before any job is accepted.
func (l Layout) Validate() error {
	if err := ValidateBucketName(l.Bucket); err != nil {
		return err
	}
	if strings.Trim(l.InputPrefix, "/") == "" {
		return apperrors.Config("CONFIGURATION_ERROR", "input prefix must not be empty")
	}
	out := strings.Trim(l.OutputPrefix, "/")
	fail := strings.Trim(l.FailurePrefix, "/")
	if out == "" || fail == "" {
		return apperrors.Config("CONFIGURATION_ERROR", "output and failure prefixes must not be empty")
	}
	if out == fail {
		return apperrors.Config("CONFIGURATION_ERROR",
			fmt.Sprintf("output and failure prefixes must differ, both are %q", out))
	}
	return nil
}

// ValidateBucketName checks a bucket name against the store's naming
// rules: 3-63 characters, lowercase alphanumerics and single hyphens,
// no leading or trailing hyphen.
func ValidateBucketName(bucket string) error {
	if len(bucket) < 3 || len(bucket) > 63 {
		return apperrors.Config("INVALID_BUCKET_NAME",
			fmt.Sprintf("bucket name must be between 3 and 63 characters, got %d", len(bucket)))
	}
	if !bucketPattern.MatchString(bucket) {
		return apperrors.Config("INVALID_BUCKET_NAME",
			fmt.Sprintf("bucket name %q contains invalid characters", bucket))
	}
	if strings.Contains(bucket, "--") {
		return apperrors.Config("INVALID_BUCKET_NAME",
			fmt.Sprintf("bucket name %q must not contain consecutive hyphens", bucket))
	}
	return nil
}

// Key resolves the object key for a job's location of the given kind.
func (l Layout) Key(jobID string, kind Kind) string {
	prefix := l.InputPrefix
	switch kind {
	case KindOutput:
		prefix = l.OutputPrefix
	case KindFailure:
		prefix = l.FailurePrefix
	}
	return strings.Trim(prefix, "/") + "/" + jobID + kind.ext()
}

// URI resolves the fully-qualified store URI for a job's location.
func (l Layout) URI(jobID string, kind Kind) string {
	return "s3://" + l.Bucket + "/" + l.Key(jobID, kind)
}

// ExtractJobID decodes a job handle into its job ID. A handle is either
// a bare ID or a fully-qualified store URI; for URIs the ID is the
// filename stem with the output suffix stripped.
func ExtractJobID(handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", apperrors.Validation("INVALID_HANDLE_FORMAT", []string{"handle must not be empty"})
	}

	idx := strings.Index(handle, "://")
	if idx < 0 {
		return handle, nil
	}

	rest := handle[idx+3:]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", apperrors.Validation("INVALID_HANDLE_FORMAT",
			[]string{"invalid store URI, expected scheme://bucket/key"})
	}

	key := parts[1]
	stem := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		stem = key[i+1:]
	}
	stem = strings.TrimSuffix(stem, ".out")
	stem = strings.TrimSuffix(stem, ".json")
	if stem == "" {
		return "", apperrors.Validation("INVALID_HANDLE_FORMAT",
			[]string{"store URI key has no filename stem"})
	}
	return stem, nil
}

// SplitURI decomposes a store URI into bucket and key. Fails unless the
// URI decomposes into exactly those two segments.
func SplitURI(uri string) (bucket, key string, err error) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return "", "", apperrors.Validation("INVALID_HANDLE_FORMAT",
			[]string{"not a store URI, expected scheme://bucket/key"})
	}
	parts := strings.SplitN(uri[idx+3:], "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperrors.Validation("INVALID_HANDLE_FORMAT",
			[]string{"invalid store URI, expected scheme://bucket/key"})
	}
	return parts[0], parts[1], nil
}
