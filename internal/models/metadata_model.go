package models

import (
	"crypto/md5"
	"encoding/hex"
	"slices"
	"time"
)

const MetadataSchemaVersion = 1

type UploadDetail struct {
	VideoID    string    `json:"video_id"`
	UploadedAt Timestamp `json:"uploaded_at"`
	HDReady    bool      `json:"hd_ready"`
	Retries    int       `json:"retries"`
}

// PostMetadata is the persisted record for one post. Field order is the on-disk key order.
type PostMetadata struct {
	SchemaVersion int                     `json:"schema_version"`
	Caption       string                  `json:"caption"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description"`
	Tags          []string                `json:"tags"`
	Uploaded      bool                    `json:"uploaded"`
	VideoIDs      []string                `json:"video_ids"`
	Uploads       []string                `json:"uploads"`
	UploadDetails map[string]UploadDetail `json:"upload_details,omitempty"`
	ContentHash   string                  `json:"content_hash"`
	FirstSeen     Timestamp               `json:"first_seen"`
}

func NewPostMetadata(caption, title, description string, tags []string, now time.Time) *PostMetadata {
	if tags == nil {
		tags = []string{}
	}
	return &PostMetadata{
		SchemaVersion: MetadataSchemaVersion,
		Caption:       caption,
		Title:         title,
		Description:   description,
		Tags:          tags,
		VideoIDs:      []string{},
		Uploads:       []string{},
		ContentHash:   ContentHash(title, description),
		FirstSeen:     NewTimestamp(now),
	}
}

// ContentHash fingerprints generated title and description for duplicate detection.
func ContentHash(title, description string) string {
	sum := md5.Sum([]byte(title + description))
	return hex.EncodeToString(sum[:])
}

// Merge carries the upload history of prior into m. Lists only grow.
func (m *PostMetadata) Merge(prior *PostMetadata) {
	if prior == nil {
		return
	}
	for _, id := range prior.VideoIDs {
		if !slices.Contains(m.VideoIDs, id) {
			m.VideoIDs = append(m.VideoIDs, id)
		}
	}
	for _, name := range prior.Uploads {
		if !slices.Contains(m.Uploads, name) {
			m.Uploads = append(m.Uploads, name)
		}
	}
	if len(prior.UploadDetails) > 0 {
		if m.UploadDetails == nil {
			m.UploadDetails = make(map[string]UploadDetail, len(prior.UploadDetails))
		}
		for name, d := range prior.UploadDetails {
			if _, ok := m.UploadDetails[name]; !ok {
				m.UploadDetails[name] = d
			}
		}
	}
	if !prior.FirstSeen.IsZero() && (m.FirstSeen.IsZero() || prior.FirstSeen.Before(m.FirstSeen.Time)) {
		m.FirstSeen = prior.FirstSeen
	}
}

func (m *PostMetadata) HasUpload(filename string) bool {
	return slices.Contains(m.Uploads, filename)
}

// RecordUpload appends a successful upload of filename.
func (m *PostMetadata) RecordUpload(filename string, res *UploadResult, now time.Time) {
	m.VideoIDs = append(m.VideoIDs, res.VideoID)
	m.Uploads = append(m.Uploads, filename)
	if m.UploadDetails == nil {
		m.UploadDetails = make(map[string]UploadDetail)
	}
	m.UploadDetails[filename] = UploadDetail{
		VideoID:    res.VideoID,
		UploadedAt: NewTimestamp(now),
		HDReady:    res.HDReady,
		Retries:    res.Retries,
	}
}

// Migrate upgrades a record read from disk to the current schema and reports
// whether anything changed. Records without schema_version are version 0.
func (m *PostMetadata) Migrate() bool {
	if m.SchemaVersion >= MetadataSchemaVersion {
		return false
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.VideoIDs == nil {
		m.VideoIDs = []string{}
	}
	if m.Uploads == nil {
		m.Uploads = []string{}
	}
	if m.ContentHash == "" {
		m.ContentHash = ContentHash(m.Title, m.Description)
	}
	m.SchemaVersion = MetadataSchemaVersion
	return true
}

// MarkUploaded keeps the invariant uploaded => len(video_ids) > 0.
func (m *PostMetadata) MarkUploaded() {
	m.Uploaded = len(m.VideoIDs) > 0
}
