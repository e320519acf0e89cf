package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kingrea/opex/internal/domain"
)

// MaxUploadSize is the per-file upload limit.
const MaxUploadSize = 5 << 20

var (
	// ErrFileTooLarge is returned before upload for files over MaxUploadSize.
	ErrFileTooLarge = errors.New("api: file exceeds 5 MB limit")
	// ErrFileType is returned before upload for types outside the allow-list.
	ErrFileType = errors.New("api: file type not allowed")
)

// AllowedUploadTypes is the MIME allow-list for attachments.
var AllowedUploadTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"image/png",
	"image/jpeg",
	"image/gif",
	"text/plain",
	"text/csv",
}

// UploadTypeAllowed reports whether contentType is on the allow-list.
func UploadTypeAllowed(contentType string) bool {
	for _, allowed := range AllowedUploadTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".txt":  "text/plain",
	".csv":  "text/csv",
}

// DetectUploadType resolves the MIME type from the extension. Files without
// an extension are sniffed.
func DetectUploadType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if known, ok := extensionTypes[ext]; ok {
		return known, nil
	}
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return stripParams(byExt), nil
		}
		return "application/octet-stream", nil
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("api: detect type of %s: %w", filepath.Base(path), err)
	}
	return stripParams(detected.String()), nil
}

func stripParams(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}

// CheckUpload validates a file against the size limit and allow-list.
func CheckUpload(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("api: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("api: %s is a directory", path)
	}
	if info.Size() > MaxUploadSize {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, filepath.Base(path), info.Size())
	}
	contentType, err := DetectUploadType(path)
	if err != nil {
		return "", err
	}
	if !UploadTypeAllowed(contentType) {
		return "", fmt.Errorf("%w: %s (%s)", ErrFileType, filepath.Base(path), contentType)
	}
	return contentType, nil
}

// ListFiles lists an initiative's attachments.
func (c *Client) ListFiles(ctx context.Context, initiativeID int64) ([]domain.InitiativeFile, error) {
	var out []domain.InitiativeFile
	if err := c.do(ctx, http.MethodGet, idPath("/files/initiative/%d", initiativeID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadFiles validates every path, then sends them in one multipart request
// under the "files" field.
func (c *Client) UploadFiles(ctx context.Context, initiativeID int64, paths ...string) ([]domain.InitiativeFile, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("api: upload: at least one file is required")
	}
	types := make([]string, len(paths))
	for i, path := range paths {
		contentType, err := CheckUpload(path)
		if err != nil {
			return nil, err
		}
		types[i] = contentType
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i, path := range paths {
		if err := writePart(writer, path, types[i]); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("api: upload: finish multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, idPath("/files/upload/%d", initiativeID), nil, &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out []domain.InitiativeFile
	if err := decodeOptional(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("api: decode upload response: %w", err)
	}
	return out, nil
}

func writePart(writer *multipart.Writer, path, contentType string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("api: upload: open %s: %w", path, err)
	}
	defer file.Close()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "files",
		"filename": filepath.Base(path),
	}))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("api: upload: create part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("api: upload: copy %s: %w", path, err)
	}
	return nil
}

// DownloadFile streams the file into w and returns its filename.
func (c *Client) DownloadFile(ctx context.Context, fileID int64, w io.Writer) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, idPath("/files/download/%d", fileID), nil, nil, "")
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("api: download %d: %w", fileID, err)
	}
	return FilenameFromDisposition(resp.Header.Get("Content-Disposition"), fileID), nil
}

// DeleteFile removes an attachment.
func (c *Client) DeleteFile(ctx context.Context, fileID int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/files/%d", fileID), nil, nil, nil)
}

// FilenameFromDisposition reads filename*= then filename= from a
// Content-Disposition header, falling back to file-<id>.
func FilenameFromDisposition(header string, fileID int64) string {
	if header != "" {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" {
				base := filepath.Base(filepath.Clean("/" + name))
				if base != "/" && base != "." {
					return base
				}
			}
		}
	}
	return fmt.Sprintf("file-%d", fileID)
}

func decodeOptional(r io.Reader, out any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
