package domain

// InitiativeFile is an attachment stored against an initiative.
type InitiativeFile struct {
	ID           int64      `json:"id"`
	InitiativeID int64      `json:"initiativeId"`
	FileName     string     `json:"fileName"`
	FileType     string     `json:"fileType,omitempty"`
	FileSize     int64      `json:"fileSize"`
	UploadedBy   string     `json:"uploadedBy,omitempty"`
	UploadedAt   *Timestamp `json:"uploadedAt,omitempty"`
}
