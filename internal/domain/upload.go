package domain

// UploadStatus is the lifecycle state of a staged file.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadSuccess   UploadStatus = "success"
	UploadError     UploadStatus = "error"
)

// FileKind is the coarse category the UI uses to pick an icon and decide
// whether a preview is available.
type FileKind string

const (
	KindImage    FileKind = "image"
	KindVideo    FileKind = "video"
	KindAudio    FileKind = "audio"
	KindDocument FileKind = "document"
	KindOther    FileKind = "other"
)

// UploadItem describes one staged file waiting to be sent to the ingestion
// webhook. The staged bytes themselves are owned by the upload queue.
type UploadItem struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	MimeType   string       `json:"mimeType"`
	SizeBytes  int64        `json:"sizeBytes"`
	Status     UploadStatus `json:"status"`
	Kind       FileKind     `json:"kind"`
	HasPreview bool         `json:"hasPreview"`
}
