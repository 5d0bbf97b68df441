package models

import "github.com/sefazor/thumbgate/pkg/thumbor"

// SourceType tells where an image locator points.
type SourceType int

const (
	SourceLocalFile SourceType = iota + 1
	SourceS3
	SourceExternal
	// SourceStatic marks bundled static assets. They are public and are
	// never sent to the renderer.
	SourceStatic
)

func (s SourceType) Tag() string {
	switch s {
	case SourceLocalFile:
		return BackendLocalFile
	case SourceS3:
		return BackendS3
	case SourceExternal:
		return thumbor.SourceTypeExternal
	case SourceStatic:
		return "static"
	}
	return "unknown"
}

func (s SourceType) String() string {
	return s.Tag()
}

// IsUpload reports whether the source is owned by the upload subsystem.
func (s SourceType) IsUpload() bool {
	return s == SourceLocalFile || s == SourceS3
}

// SourceTypeForBackend maps an upload backend tag to its source type.
func SourceTypeForBackend(backend string) (SourceType, bool) {
	switch backend {
	case BackendLocalFile:
		return SourceLocalFile, true
	case BackendS3:
		return SourceS3, true
	}
	return 0, false
}

type SizeSpec string

const (
	SizeOriginal  SizeSpec = "original"
	SizeThumbnail SizeSpec = "thumbnail"
)

// ClassifiedResource is derived once per request and never mutated.
//
// CanonicalPath is the storage path (without the upload prefix) for
// uploads, the full URL for external images and the root-relative path
// for static assets.
type ClassifiedResource struct {
	SourceType    SourceType
	CanonicalPath string
	RealmID       *uint
	OwnerID       *uint
	RealmPublic   bool
}

type ThumbnailQuery struct {
	URL  string `query:"url" validate:"required"`
	Size string `query:"size" validate:"required,thumbnail_size"`
}
