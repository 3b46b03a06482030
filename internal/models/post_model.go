package models

import (
	"path/filepath"
	"strings"
	"time"
)

// PostRecord is one fetched post: a caption plus the media files sharing its name prefix.
type PostRecord struct {
	BaseName   string
	MediaFiles []string
	Caption    string
	Timestamp  *time.Time // nil when BaseName does not carry a parseable date
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {},
}

// IsVideoFile reports whether path has one of the uploadable video extensions.
func IsVideoFile(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

const (
	PrivacyPublic   = "public"
	PrivacyUnlisted = "unlisted"
	PrivacyPrivate  = "private"
)

const DefaultCategoryID = "22" // People & Blogs
