package cybertip

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/retry"
)

var testRetry = retry.Policy{MaxAttempts: 5, Initial: time.Microsecond, Max: time.Millisecond, Multiplier: 2}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		ProductionBaseURL: srv.URL + "/prod",
		TestBaseURL:       srv.URL + "/test",
		HTTPClient:        srv.Client(),
		Retry:             testRetry,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const okSubmit = `<?xml version="1.0" encoding="UTF-8"?>
<reportResponse><responseCode>0</responseCode><responseDescription>Success</responseDescription><reportId>4242</reportId></reportResponse>`

func TestSendXMLBody(t *testing.T) {
	var gotPath, gotCT, gotBody, gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotUser, gotPass, _ = r.BasicAuth()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(okSubmit))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	resp, err := c.Send(context.Background(), Credentials{Username: "u", Password: "p"},
		XMLBody("<report/>"), RouteSubmit, true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/test/submit" {
		t.Errorf("path = %q, want /test/submit", gotPath)
	}
	if gotCT != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", gotCT)
	}
	if gotUser != "u" || gotPass != "p" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotBody != "<report/>" {
		t.Errorf("body = %q", gotBody)
	}

	rr, err := resp.ReportResponse()
	if err != nil {
		t.Fatalf("ReportResponse: %v", err)
	}
	if !rr.OK() || rr.ReportID != "4242" {
		t.Errorf("decoded = %+v", rr)
	}
}

func TestSendProductionRoute(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(okSubmit))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).Send(context.Background(), Credentials{}, XMLBody("<x/>"), RouteFileInfo, false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/prod/fileinfo" {
		t.Errorf("path = %q, want /prod/fileinfo", gotPath)
	}
}

func TestSendRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantCalls int32
		wantErr   bool
	}{
		{name: "recovers after two failures", failures: 2, wantCalls: 3},
		{name: "gives up after five attempts", failures: 100, wantCalls: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("ParseMultipartForm: %v", err)
				}
				if r.FormValue("id") != "4242" {
					t.Errorf("id field = %q", r.FormValue("id"))
				}
				if calls.Add(1) <= tt.failures {
					http.Error(w, "unavailable", http.StatusServiceUnavailable)
					return
				}
				w.Write([]byte(okSubmit))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).Send(context.Background(), Credentials{},
				FormBody{Fields: []Field{{Name: "id", Value: "4242"}}}, RouteFinish, true)
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrRequestFailed) {
				t.Errorf("err = %v, want ErrRequestFailed", err)
			}
		})
	}
}

func TestSendStreamBody(t *testing.T) {
	var gotFile, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		gotFile, gotName = string(b), hdr.Filename
		w.Write([]byte(`<reportResponse><responseCode>0</responseCode><fileId>f-1</fileId></reportResponse>`))
	}))
	defer srv.Close()

	body := &StreamBody{
		Fields:    []Field{{Name: "id", Value: "4242"}},
		FieldName: "file",
		FileName:  "evidence.jpg",
		Reader:    strings.NewReader("jpeg-bytes"),
	}
	resp, err := newTestClient(srv).Send(context.Background(), Credentials{}, body, RouteUpload, true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotFile != "jpeg-bytes" || gotName != "evidence.jpg" {
		t.Errorf("file = %q name = %q", gotFile, gotName)
	}
	rr, err := resp.ReportResponse()
	if err != nil || rr.FileID != "f-1" {
		t.Errorf("ReportResponse = %+v, %v", rr, err)
	}
}

func TestSendStreamBodyNotRetriedAfterConsumption(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.Copy(io.Discard, r.Body)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	body := &StreamBody{FieldName: "file", FileName: "a.bin", Reader: strings.NewReader("payload")}
	_, err := newTestClient(srv).Send(context.Background(), Credentials{}, body, RouteUpload, true)
	if !errors.Is(err, ErrStreamConsumed) {
		t.Fatalf("err = %v, want ErrStreamConsumed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDecodeResponses(t *testing.T) {
	done := &Response{Body: []byte(`<reportDoneResponse><responseCode>0</responseCode><reportId>4242</reportId><files><fileId>a</fileId><fileId>b</fileId></files></reportDoneResponse>`)}
	d, err := done.DoneResponse()
	if err != nil {
		t.Fatalf("DoneResponse: %v", err)
	}
	if d.ReportID != "4242" || len(d.FileIDs) != 2 {
		t.Errorf("decoded = %+v", d)
	}

	if _, err := done.ReportResponse(); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("wrong root: err = %v, want ErrMalformedResponse", err)
	}

	bad := &Response{Body: []byte("not xml")}
	if _, err := bad.ReportResponse(); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("garbage: err = %v, want ErrMalformedResponse", err)
	}

	failed := &Response{Body: []byte(`<reportResponse><responseCode>1000</responseCode></reportResponse>`)}
	rr, err := failed.ReportResponse()
	if err != nil {
		t.Fatalf("ReportResponse: %v", err)
	}
	if rr.OK() {
		t.Error("OK() = true for response code 1000")
	}
}

func TestSendStreamBodyIsSingleShot(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// An empty reader is never consumed, so only the single-shot rule stops a retry.
	body := &StreamBody{FieldName: "file", FileName: "a.bin", Reader: strings.NewReader("")}
	_, err := newTestClient(srv).Send(context.Background(), Credentials{}, body, RouteUpload, true)
	if err == nil {
		t.Fatal("Send succeeded, want error")
	}
	if errors.Is(err, ErrStreamConsumed) {
		t.Errorf("err = %v, want no ErrStreamConsumed for an unread stream", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
