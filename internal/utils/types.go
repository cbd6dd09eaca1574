package utils

import "time"

// ResourceKind identifies which platform API a task identifier belongs to.
type ResourceKind string

const (
	KindCourse    ResourceKind = "course"
	KindClassroom ResourceKind = "classroom"
	KindTextbook  ResourceKind = "textbook"
)

// MediaKind classifies what a DownloadItem's bytes are.
type MediaKind string

const (
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
)

// QualityVariant is one rendition of a video resource. Height is the numeric
// quality label (720 for "720p").
type QualityVariant struct {
	Height int
	URL    string
}

// DownloadItem is one downloadable file produced by an extractor. RelPath is
// the sanitized path relative to the output root, computed once before the
// item reaches the transfer manager. For videos URL holds the playlist URL
// and MD5 is empty; the merged file is validated by segment completion.
type DownloadItem struct {
	ID      string
	Kind    ResourceKind
	Media   MediaKind
	Title   string
	URL     string
	RelPath string
	Size    int64 // 0 when the API reported none
	MD5     string
	Date    time.Time
	// Variants is populated for video items, sorted highest first.
	Variants []QualityVariant
}

// Task is one user-supplied identifier plus the kind it resolved to.
type Task struct {
	Input string
	Kind  ResourceKind
	ID    string
}

// TransferStatus is the terminal state of one item's transfer.
type TransferStatus string

const (
	StatusCompleted TransferStatus = "completed"
	StatusSkipped   TransferStatus = "skipped"
	StatusFailed    TransferStatus = "failed"
)

// TransferResult records one item's outcome for the final report.
type TransferResult struct {
	Item   DownloadItem
	Status TransferStatus
	Reason string
	Err    error
}

// BatchEntry is one line of a YAML batch file.
type BatchEntry struct {
	ID     string `yaml:"id"`
	Type   string `yaml:"type"`
	Output string `yaml:"op"`
}
