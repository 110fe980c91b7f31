// Package report assembles the documents sent to the CyberTipline: the
// incident report, per-file details and conversation transcripts. Every
// builder here is a pure function of its inputs.
//
// Element order inside each struct is significant. The receiving service
// validates against a schema that fixes the sequence of child elements, so
// fields are declared in wire order.
package report

import (
	"encoding/xml"
	"fmt"
)

// Marker is an element whose presence alone carries meaning, such as a file
// annotation flag. It always renders empty.
type Marker struct{}

// Report is the incident document posted to /submit.
type Report struct {
	XMLName              xml.Name              `xml:"report"`
	IncidentSummary      IncidentSummary       `xml:"incidentSummary"`
	InternetDetails      *InternetDetails      `xml:"internetDetails,omitempty"`
	Reporter             Reporter              `xml:"reporter"`
	PersonOrUserReported *PersonOrUserReported `xml:"personOrUserReported,omitempty"`
	AdditionalInfo       string                `xml:"additionalInfo,omitempty"`
}

type IncidentSummary struct {
	IncidentType           string `xml:"incidentType"`
	EscalateToHighPriority string `xml:"escalateToHighPriority,omitempty"`
	IncidentDateTime       string `xml:"incidentDateTime"`
}

// InternetDetails holds exactly one incident channel.
type InternetDetails struct {
	WebPage      *WebPageIncident `xml:"webPageIncident,omitempty"`
	Email        *Marker          `xml:"emailIncident,omitempty"`
	Newsgroup    *Marker          `xml:"newsgroupIncident,omitempty"`
	ChatIM       *Marker          `xml:"chatImIncident,omitempty"`
	OnlineGaming *Marker          `xml:"onlineGamingIncident,omitempty"`
	CellPhone    *Marker          `xml:"cellPhoneIncident,omitempty"`
	NonInternet  *Marker          `xml:"nonInternetIncident,omitempty"`
	PeerToPeer   *Marker          `xml:"peer2peerIncident,omitempty"`
}

type WebPageIncident struct {
	URL string `xml:"url"`
}

type Reporter struct {
	ReportingPerson Person  `xml:"reportingPerson"`
	ContactPerson   *Person `xml:"contactPerson,omitempty"`
	CompanyTemplate string  `xml:"companyTemplate,omitempty"`
	TermsOfService  string  `xml:"termsOfService,omitempty"`
	LegalURL        string  `xml:"legalURL,omitempty"`
}

type Person struct {
	FirstName string         `xml:"firstName,omitempty"`
	LastName  string         `xml:"lastName,omitempty"`
	Phone     string         `xml:"phone,omitempty"`
	Emails    []EmailAddress `xml:"email"`
}

// EmailAddress renders as <email type=".." verified="..">addr</email>.
type EmailAddress struct {
	Address          string `xml:",chardata"`
	Type             string `xml:"type,attr,omitempty"`
	Verified         *bool  `xml:"verified,attr,omitempty"`
	VerificationDate string `xml:"verificationDate,attr,omitempty"`
}

type PersonOrUserReported struct {
	Person            Person             `xml:"personOrUserReportedPerson"`
	ESPIdentifier     string             `xml:"espIdentifier,omitempty"`
	ESPService        string             `xml:"espService,omitempty"`
	ScreenName        string             `xml:"screenName,omitempty"`
	DisplayNames      []string           `xml:"displayName"`
	IPCaptureEvents   []IPCaptureEvent   `xml:"ipCaptureEvent"`
	EstimatedLocation *EstimatedLocation `xml:"estimatedLocation,omitempty"`
}

// IPCaptureEvent children must stay in this order.
type IPCaptureEvent struct {
	IPAddress     string `xml:"ipAddress"`
	EventName     string `xml:"eventName,omitempty"`
	DateTime      string `xml:"dateTime,omitempty"`
	PossibleProxy bool   `xml:"possibleProxy,omitempty"`
	Port          int    `xml:"port,omitempty"`
}

type EstimatedLocation struct {
	CountryCode string `xml:"countryCode"`
	Verified    bool   `xml:"verified"`
}

// FileDetails is the document posted to /fileinfo after each upload.
type FileDetails struct {
	XMLName                xml.Name         `xml:"fileDetails"`
	ReportID               string           `xml:"reportId"`
	FileID                 string           `xml:"fileId"`
	FileViewedByESP        *bool            `xml:"fileViewedByEsp,omitempty"`
	ExifViewedByESP        *bool            `xml:"exifViewedByEsp,omitempty"`
	PubliclyAvailable      *bool            `xml:"publiclyAvailable,omitempty"`
	FileRelevance          string           `xml:"fileRelevance,omitempty"`
	FileAnnotations        *FileAnnotations `xml:"fileAnnotations,omitempty"`
	IndustryClassification string           `xml:"industryClassification,omitempty"`
	IPCaptureEvents        []IPCaptureEvent `xml:"ipCaptureEvent"`
	Details                []Detail         `xml:"details"`
	AdditionalInfo         []string         `xml:"additionalInfo"`
}

type FileAnnotations struct {
	AnimeDrawingVirtualHentai *Marker `xml:"animeDrawingVirtualHentai,omitempty"`
	PotentialMeme             *Marker `xml:"potentialMeme,omitempty"`
	Viral                     *Marker `xml:"viral,omitempty"`
	PossibleSelfProduction    *Marker `xml:"possibleSelfProduction,omitempty"`
	PhysicalHarm              *Marker `xml:"physicalHarm,omitempty"`
	ViolenceGore              *Marker `xml:"violenceGore,omitempty"`
	Bestiality                *Marker `xml:"bestiality,omitempty"`
	LiveStreaming             *Marker `xml:"liveStreaming,omitempty"`
	Infant                    *Marker `xml:"infant,omitempty"`
	GenerativeAI              *Marker `xml:"generativeAi,omitempty"`
}

type Detail struct {
	Type          string        `xml:"type,attr,omitempty"`
	NameValuePair NameValuePair `xml:"nameValuePair"`
}

type NameValuePair struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

// Marshal renders a document to the exact bytes sent on the wire.
func Marshal(v any) ([]byte, error) {
	out, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %T: %w", v, err)
	}
	return out, nil
}
