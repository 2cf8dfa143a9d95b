package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"time"
)

// Field names understood by the automation webhooks. The message text is
// written under both fieldMessage and fieldMessageLegacy with identical
// values; older workflow templates read the legacy name.
const (
	fieldMessage       = "chatInput"
	fieldMessageLegacy = "message"
	fieldSession       = "sessionId"
	fieldFileMeta      = "fileMeta"
	fieldFileCount     = "fileCount"
)

// File is one attachment to include in a submission. Reader is consumed
// during request construction and not retained.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}

type fileMeta struct {
	Name      string `json:"name"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	Key       string `json:"key"`
}

// writeMultipart writes the canonical submission body: the message text
// under both field names, the session identifier, one uniquely keyed binary
// part per file each followed by a fileMeta JSON part carrying the same
// key, and a trailing file count. The fileMeta field name repeats once per
// file; consumers must read it with repeated-field semantics.
func writeMultipart(w *multipart.Writer, message, session string, files []File) error {
	if err := w.WriteField(fieldMessage, message); err != nil {
		return fmt.Errorf("write %s field: %w", fieldMessage, err)
	}
	if err := w.WriteField(fieldMessageLegacy, message); err != nil {
		return fmt.Errorf("write %s field: %w", fieldMessageLegacy, err)
	}
	if err := w.WriteField(fieldSession, session); err != nil {
		return fmt.Errorf("write session field: %w", err)
	}

	for i, f := range files {
		key := "file" + strconv.Itoa(i)

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, key, f.Name))
		contentType := f.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create part %s: %w", key, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}

		meta, err := json.Marshal(fileMeta{
			Name:      f.Name,
			MimeType:  f.MimeType,
			SizeBytes: f.Size,
			Key:       key,
		})
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", f.Name, err)
		}
		if err := w.WriteField(fieldFileMeta, string(meta)); err != nil {
			return fmt.Errorf("write metadata for %s: %w", f.Name, err)
		}
	}

	return w.WriteField(fieldFileCount, strconv.Itoa(len(files)))
}

// sessionID returns the correlation token for one calling context. It is
// deterministic within a calendar day so the remote workflow can group all
// of a day's calls from the same context into one logical session.
func sessionID(prefix string, now time.Time) string {
	return prefix + "-" + now.Format("2006-01-02")
}
