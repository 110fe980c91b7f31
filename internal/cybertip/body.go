package cybertip

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sync/atomic"
)

// Body is the payload of a clearinghouse request. It is exactly one of
// XMLBody, FormBody or *StreamBody.
type Body interface {
	isBody()
}

// XMLBody is an in-memory XML document, sent as text/xml.
type XMLBody []byte

// Field is a plain multipart form field.
type Field struct {
	Name  string
	Value string
}

// FormFile is a buffered multipart file part.
type FormFile struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// FormBody is a multipart form whose parts are all held in memory, so it can
// be re-encoded for every attempt.
type FormBody struct {
	Fields []Field
	File   *FormFile
}

// StreamBody is a multipart form whose file part is read from Reader while
// the request is in flight. The transport sends it at most once. A failure
// after any byte of Reader was consumed wraps ErrStreamConsumed.
type StreamBody struct {
	Fields    []Field
	FieldName string
	FileName  string
	Reader    io.Reader

	consumed atomic.Int64
}

func (XMLBody) isBody()     {}
func (FormBody) isBody()    {}
func (*StreamBody) isBody() {}

// Consumed reports how many bytes of the stream have been read.
func (b *StreamBody) Consumed() int64 {
	return b.consumed.Load()
}

func (b *StreamBody) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	b.consumed.Add(int64(n))
	return n, err
}

// encode renders a buffered form into a fresh reader plus its content type.
func (f FormBody) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range f.Fields {
		if err := w.WriteField(field.Name, field.Value); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", field.Name, err)
		}
	}
	if f.File != nil {
		part, err := createFilePart(w, f.File.FieldName, f.File.FileName, f.File.ContentType)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.File.Data); err != nil {
			return nil, "", fmt.Errorf("writing file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// pipe streams the form through an io.Pipe. The caller must close the
// returned reader once the request is done and then wait on done, so that
// the writer goroutine has stopped reading the source before Send returns.
func (b *StreamBody) pipe() (pr *io.PipeReader, contentType string, done <-chan struct{}) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for _, field := range b.Fields {
			if err := w.WriteField(field.Name, field.Value); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := createFilePart(w, b.FieldName, b.FileName, "application/octet-stream")
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, b); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(w.Close())
	}()
	return pr, w.FormDataContentType(), finished
}

func createFilePart(w *multipart.Writer, fieldName, fileName, contentType string) (io.Writer, error) {
	if fieldName == "" {
		fieldName = "file"
	}
	if fileName == "" {
		fileName = "blob"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	return part, nil
}
