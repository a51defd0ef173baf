package storage

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rohmanhakim/docs-archiver/internal/manifest"
	"github.com/rohmanhakim/docs-archiver/internal/urlpolicy"
	"github.com/rohmanhakim/docs-archiver/pkg/failure"
	"github.com/rohmanhakim/docs-archiver/pkg/fileutil"
	"github.com/rohmanhakim/docs-archiver/pkg/hashutil"
)

/*
Responsibilities
- Persist fetched pages under html/{digest}{ext}
- Persist asset bytes under {subdir}/{digest}{ext}
- Ensure deterministic filenames

Output Characteristics
- Stable directory layout
- Idempotent writes
- Overwrite-safe reruns

Directories are created lazily, on first write into them: a run that fetches
no images never creates an images/ directory.
*/

const pagesSubdir = "html"

type Sink interface {
	WritePage(runRoot string, pageURL url.URL, contentType string, content []byte) (WriteResult, failure.ClassifiedError)
	WriteAsset(runRoot string, relPath string, content []byte) failure.ClassifiedError
}

type LocalSink struct {
	metadataSink manifest.MetadataSink
}

func NewLocalSink(metadataSink manifest.MetadataSink) LocalSink {
	return LocalSink{
		metadataSink: metadataSink,
	}
}

// WritePage stores a fetched page's bytes under {run_root}/html/{digest}{ext},
// where ext is derived from contentType.
func (s *LocalSink) WritePage(
	runRoot string,
	pageURL url.URL,
	contentType string,
	content []byte,
) (WriteResult, failure.ClassifiedError) {
	writeResult, err := writePage(runRoot, pageURL, contentType, content)
	if err != nil {
		var storageError *StorageError
		errors.As(err, &storageError)
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.WritePage",
			mapStorageErrorToMetadataCause(storageError),
			err.Error(),
			[]manifest.Attribute{
				manifest.NewAttr(manifest.AttrURL, pageURL.String()),
				manifest.NewAttr(manifest.AttrWritePath, storageError.Path),
			},
		)
		return WriteResult{}, storageError
	}
	contentHash, hashErr := hashutil.HashBytes(content, hashutil.HashAlgoBLAKE3)
	if hashErr != nil {
		contentHash = ""
	}
	s.metadataSink.RecordArtifact(
		manifest.ArtifactPage,
		writeResult.Path(),
		[]manifest.Attribute{
			manifest.NewAttr(manifest.AttrWritePath, writeResult.Path()),
			manifest.NewAttr(manifest.AttrURL, pageURL.String()),
			manifest.NewAttr(manifest.AttrField, writeResult.Digest()),
			manifest.NewAttr(manifest.AttrContentHash, contentHash),
		},
	)
	return writeResult, nil
}

// WriteAsset writes raw asset bytes to relPath (as returned by
// urlpolicy.AssetLocalPath), relative to runRoot. Callers decide text vs.
// binary encoding before calling this; the sink only ever writes bytes.
func (s *LocalSink) WriteAsset(runRoot string, relPath string, content []byte) failure.ClassifiedError {
	fullPath := filepath.Join(runRoot, relPath)
	if err := fileutil.EnsureDir(filepath.Dir(fullPath)); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      filepath.Dir(fullPath),
		}
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.WriteAsset",
			mapStorageErrorToMetadataCause(storageErr),
			storageErr.Error(),
			[]manifest.Attribute{manifest.NewAttr(manifest.AttrWritePath, storageErr.Path)},
		)
		return storageErr
	}
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		storageErr := newWriteError(err, fullPath)
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.WriteAsset",
			mapStorageErrorToMetadataCause(storageErr),
			storageErr.Error(),
			[]manifest.Attribute{manifest.NewAttr(manifest.AttrWritePath, fullPath)},
		)
		return storageErr
	}
	s.metadataSink.RecordArtifact(
		manifest.ArtifactAsset,
		fullPath,
		[]manifest.Attribute{manifest.NewAttr(manifest.AttrWritePath, fullPath)},
	)
	return nil
}

// NoopSink discards every write. The Controller substitutes it for
// LocalSink on a dry run, so the fetch/rewrite pipeline still runs end to
// end without anything touching disk.
type NoopSink struct{}

func (NoopSink) WritePage(runRoot string, pageURL url.URL, contentType string, content []byte) (WriteResult, failure.ClassifiedError) {
	return NewWriteResult(urlpolicy.Digest(pageURL), "", int64(len(content))), nil
}

func (NoopSink) WriteAsset(runRoot string, relPath string, content []byte) failure.ClassifiedError {
	return nil
}

var _ Sink = NoopSink{}

func writePage(
	runRoot string,
	pageURL url.URL,
	contentType string,
	content []byte,
) (WriteResult, failure.ClassifiedError) {
	pagesDir := filepath.Join(runRoot, pagesSubdir)
	if err := fileutil.EnsureDir(pagesDir); err != nil {
		var fileErr *fileutil.FileError
		if errors.As(err, &fileErr) {
			return WriteResult{}, &StorageError{
				Message:   err.Error(),
				Retryable: false,
				Cause:     ErrCausePathError,
				Path:      pagesDir,
			}
		}
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      pagesDir,
		}
	}

	digest := urlpolicy.Digest(pageURL)
	filename := digest + extForContentType(contentType)
	fullPath := filepath.Join(pagesDir, filename)

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return WriteResult{}, newWriteError(err, fullPath)
	}

	return NewWriteResult(digest, fullPath, int64(len(content))), nil
}

func newWriteError(err error, path string) *StorageError {
	cause := ErrCauseWriteFailure
	retryable := false
	if errors.Is(err, syscall.ENOSPC) {
		cause = ErrCauseDiskFull
		retryable = true
	}
	return &StorageError{
		Message:   err.Error(),
		Retryable: retryable,
		Cause:     cause,
		Path:      path,
	}
}

// extForContentType picks the on-disk extension for a page by its response
// content-type: .json, .xml, .txt, or .html as the catch-all.
func extForContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	ct = strings.TrimSpace(ct)
	switch {
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "xml"):
		return ".xml"
	case ct == "text/plain":
		return ".txt"
	default:
		return ".html"
	}
}
