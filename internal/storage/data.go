package storage

// Persistence

// WriteResult describes a page write: its URL digest (urlpolicy.Digest, used
// as the filename stem), the path it was written to, and its size on disk.
type WriteResult struct {
	digest    string
	path      string
	sizeBytes int64
}

func NewWriteResult(digest string, path string, sizeBytes int64) WriteResult {
	return WriteResult{
		digest:    digest,
		path:      path,
		sizeBytes: sizeBytes,
	}
}

func (w *WriteResult) Digest() string {
	return w.digest
}

func (w *WriteResult) Path() string {
	return w.path
}

func (w *WriteResult) SizeBytes() int64 {
	return w.sizeBytes
}
