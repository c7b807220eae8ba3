package model

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadError     UploadStatus = "error"
)

// UploadProgress tracks one file of an upload batch.
type UploadProgress struct {
	FileName string       `json:"fileName"`
	Progress int          `json:"progress"`
	Status   UploadStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// Terminal reports whether the file has finished, successfully or not.
func (p UploadProgress) Terminal() bool {
	return p.Status == UploadCompleted || p.Status == UploadError
}
