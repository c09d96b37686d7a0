package blobstore

// Hooks are callbacks for blob cache events. They run on the read path and
// must not block.
type Hooks interface {
	// A cached entry was dropped on read.
	// reason ∈ {"corrupt", "gen_mismatch", "source_changed"}
	BlobSelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (pressure or oversized entry).
	BlobSetRejected(storageKey string, size int)

	// op ∈ {"snapshot", "bump"}
	BlobGenError(op, storageKey string, err error)

	// Both gen bump and delete failed during Invalidate.
	BlobInvalidateOutage(path string, bumpErr, delErr error)
}

type NopHooks struct{}

func (NopHooks) BlobSelfHeal(string, string)               {}
func (NopHooks) BlobSetRejected(string, int)               {}
func (NopHooks) BlobGenError(string, string, error)        {}
func (NopHooks) BlobInvalidateOutage(string, error, error) {}
