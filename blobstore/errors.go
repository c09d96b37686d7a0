package blobstore

import "fmt"

// InvalidateError reports a failed invalidation. A failed bump leaves cached
// bytes of the old file version readable until their TTL or fingerprint check
// catches up; a failed delete alone is harmless once the bump succeeded.
type InvalidateError struct {
	Path    string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Path, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Path, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Path, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Path)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
