package domain

// DocumentStatus is the backend-reported indexing state of a document.
type DocumentStatus string

const (
	DocumentIndexed    DocumentStatus = "indexed"
	DocumentProcessing DocumentStatus = "processing"
	DocumentFailed     DocumentStatus = "failed"
)

// Document describes an uploaded reference document as reported by the
// backend. The backend owns the lifecycle; this side only mirrors it.
type Document struct {
	ID          string         `json:"document_id"`
	Filename    string         `json:"filename"`
	FileSize    int64          `json:"file_size"`
	TotalChunks int            `json:"total_chunks"`
	Status      DocumentStatus `json:"status"`
	UploadedAt  string         `json:"uploaded_at,omitempty"`
}

// UploadFailure is a single rejected file from a batch upload.
type UploadFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResult is the backend's per-file accounting for a batch upload.
// A batch can partially succeed; callers must re-fetch the authoritative
// document list rather than apply this result locally.
type UploadResult struct {
	Successful    []Document      `json:"successful"`
	Failed        []UploadFailure `json:"failed"`
	TotalUploaded int             `json:"total_uploaded"`
	TotalFailed   int             `json:"total_failed"`
}
