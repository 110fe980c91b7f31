package cybertip

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ResponseCodeOK is the response code of a successful call.
const ResponseCodeOK = "0"

// ErrMalformedResponse is returned when a response body does not have the
// expected root element.
var ErrMalformedResponse = errors.New("malformed cybertip response")

// ReportResponse is the reply to /submit, /upload and /fileinfo.
type ReportResponse struct {
	XMLName             xml.Name `xml:"reportResponse"`
	ResponseCode        string   `xml:"responseCode"`
	ResponseDescription string   `xml:"responseDescription"`
	ReportID            string   `xml:"reportId"`
	FileID              string   `xml:"fileId"`
	Hash                string   `xml:"hash"`
}

// OK reports whether the call was accepted.
func (r *ReportResponse) OK() bool {
	return strings.TrimSpace(r.ResponseCode) == ResponseCodeOK
}

// DoneResponse is the reply to /finish.
type DoneResponse struct {
	XMLName      xml.Name `xml:"reportDoneResponse"`
	ResponseCode string   `xml:"responseCode"`
	ReportID     string   `xml:"reportId"`
	FileIDs      []string `xml:"files>fileId"`
}

// ReportResponse decodes the body as a reportResponse document.
func (r *Response) ReportResponse() (*ReportResponse, error) {
	var out ReportResponse
	if err := decode(r.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DoneResponse decodes the body as a reportDoneResponse document.
func (r *Response) DoneResponse() (*DoneResponse, error) {
	var out DoneResponse
	if err := decode(r.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decode(body []byte, v any) error {
	if err := xml.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
