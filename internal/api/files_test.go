package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("a"), size), 0o600))
	return path
}

func TestCheckUploadEnforcesLimitAndAllowList(t *testing.T) {
	contentType, err := CheckUpload(writeFile(t, "notes.txt", 10))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", contentType)

	_, err = CheckUpload(writeFile(t, "big.pdf", MaxUploadSize+1))
	assert.True(t, errors.Is(err, ErrFileTooLarge))

	_, err = CheckUpload(writeFile(t, "script.exe", 10))
	assert.True(t, errors.Is(err, ErrFileType))
}

func TestDetectUploadTypeSniffsFilesWithoutExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	require.NoError(t, os.WriteFile(path, png, 0o600))
	contentType, err := DetectUploadType(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
}

func TestUploadFilesSendsMultipart(t *testing.T) {
	client := newTestClient(t, nil)
	path := writeFile(t, "report.csv", 32)

	var fieldName, fileName string
	gock.New(testOrigin).
		Post("/api/files/upload/7").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				return false, err
			}
			for name, headers := range req.MultipartForm.File {
				fieldName = name
				fileName = headers[0].Filename
			}
			return true, nil
		}).
		Reply(200).
		JSON([]map[string]any{{"id": 11, "initiativeId": 7, "fileName": "report.csv", "fileSize": 32}})

	files, err := client.UploadFiles(context.Background(), 7, path)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "files", fieldName)
	assert.Equal(t, "report.csv", fileName)
}

func TestUploadFilesRejectsBeforeRequest(t *testing.T) {
	client := newTestClient(t, nil)
	_, err := client.UploadFiles(context.Background(), 7, writeFile(t, "virus.exe", 4))
	assert.True(t, errors.Is(err, ErrFileType))
	assert.False(t, gock.HasUnmatchedRequest())
}

func TestDownloadFileUsesContentDisposition(t *testing.T) {
	client := newTestClient(t, nil)

	gock.New(testOrigin).
		Get("/api/files/download/11").
		Reply(200).
		SetHeader("Content-Disposition", `attachment; filename="plain.pdf"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`).
		BodyString("%PDF-1.4")

	var buf bytes.Buffer
	name, err := client.DownloadFile(context.Background(), 11, &buf)
	require.NoError(t, err)
	assert.Equal(t, "résumé.pdf", name)
	assert.Equal(t, "%PDF-1.4", buf.String())
}

func TestFilenameFromDisposition(t *testing.T) {
	assert.Equal(t, "a.txt", FilenameFromDisposition(`attachment; filename="a.txt"`, 1))
	assert.Equal(t, "passwd", FilenameFromDisposition(`attachment; filename="../../etc/passwd"`, 1))
	assert.Equal(t, "file-9", FilenameFromDisposition("", 9))
	assert.Equal(t, "file-9", FilenameFromDisposition("garbage;;", 9))
	assert.False(t, strings.Contains(FilenameFromDisposition(`attachment; filename="x/y.txt"`, 2), "/"))
}

func TestDeleteFile(t *testing.T) {
	client := newTestClient(t, nil)
	gock.New(testOrigin).Delete("/api/files/11").Reply(204)
	require.NoError(t, client.DeleteFile(context.Background(), 11))
	assert.True(t, gock.IsDone())
}
