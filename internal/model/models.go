package model

import "time"

// IncidentType is the CyberTipline incident classification.
type IncidentType string

const (
	IncidentChildPornography     IncidentType = "Child Pornography (possession, manufacture, and distribution)"
	IncidentChildSexTrafficking  IncidentType = "Child Sex Trafficking"
	IncidentChildSexTourism      IncidentType = "Child Sex Tourism"
	IncidentChildSexMolestation  IncidentType = "Child Sexual Molestation"
	IncidentMisleadingDomainName IncidentType = "Misleading Domain Name"
	IncidentMisleadingWords      IncidentType = "Misleading Words or Digital Images on the Internet"
	IncidentOnlineEnticement     IncidentType = "Online Enticement of Children for Sexual Acts"
	IncidentUnsolicitedObscene   IncidentType = "Unsolicited Obscene Material Sent to a Child"
)

var incidentTypes = map[IncidentType]bool{
	IncidentChildPornography:     true,
	IncidentChildSexTrafficking:  true,
	IncidentChildSexTourism:      true,
	IncidentChildSexMolestation:  true,
	IncidentMisleadingDomainName: true,
	IncidentMisleadingWords:      true,
	IncidentOnlineEnticement:     true,
	IncidentUnsolicitedObscene:   true,
}

// Valid reports whether t is one of the known incident types.
func (t IncidentType) Valid() bool {
	return incidentTypes[t]
}

// FileAnnotation is a reviewer tag attached to a reported file.
type FileAnnotation string

const (
	AnnotationAnimeDrawingVirtualHentai FileAnnotation = "ANIME_DRAWING_VIRTUAL_HENTAI"
	AnnotationPotentialMeme             FileAnnotation = "POTENTIAL_MEME"
	AnnotationViral                     FileAnnotation = "VIRAL"
	AnnotationPossibleSelfProduction    FileAnnotation = "POSSIBLE_SELF_PRODUCTION"
	AnnotationPhysicalHarm              FileAnnotation = "PHYSICAL_HARM"
	AnnotationViolenceGore              FileAnnotation = "VIOLENCE_GORE"
	AnnotationBestiality                FileAnnotation = "BESTIALITY"
	AnnotationLiveStreaming             FileAnnotation = "LIVE_STREAMING"
	AnnotationInfant                    FileAnnotation = "INFANT"
	AnnotationGenerativeAI              FileAnnotation = "GENERATIVE_AI"
)

// IndustryClassification is the ESP industry category of a reported file.
type IndustryClassification string

const (
	IndustryA1 IndustryClassification = "A1"
	IndustryA2 IndustryClassification = "A2"
	IndustryB1 IndustryClassification = "B1"
	IndustryB2 IndustryClassification = "B2"
)

// EventName labels an IP capture event.
type EventName string

const (
	EventLogin        EventName = "Login"
	EventRegistration EventName = "Registration"
	EventPurchase     EventName = "Purchase"
	EventUpload       EventName = "Upload"
	EventOther        EventName = "Other"
	EventUnknown      EventName = "Unknown"
)

// EmailType classifies a reported email address.
type EmailType string

const (
	EmailHome     EmailType = "Home"
	EmailWork     EmailType = "Work"
	EmailBusiness EmailType = "Business"
)

// InternetDetailType is the org-level default channel the incident happened on.
type InternetDetailType string

const (
	InternetWebPage     InternetDetailType = "WEB_PAGE"
	InternetEmail       InternetDetailType = "EMAIL"
	InternetNewsgroup   InternetDetailType = "NEWSGROUP"
	InternetChatIM      InternetDetailType = "CHAT_IM"
	InternetOnlineGame  InternetDetailType = "ONLINE_GAMING"
	InternetCellPhone   InternetDetailType = "CELL_PHONE"
	InternetNonInternet InternetDetailType = "NON_INTERNET"
	InternetPeerToPeer  InternetDetailType = "PEER_TO_PEER"
)

// Identifier addresses an item of a given item type.
type Identifier struct {
	ID     string `json:"id"`
	TypeID string `json:"typeId"`
}

// Subject is the reported user.
type Subject struct {
	ID             string `json:"id"`
	TypeID         string `json:"typeId"`
	DisplayName    string `json:"displayName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Identifier returns the subject's item identifier.
func (s Subject) Identifier() Identifier {
	return Identifier{ID: s.ID, TypeID: s.TypeID}
}

// Media is a single reported media item.
type Media struct {
	ID                     string                 `json:"id"`
	TypeID                 string                 `json:"typeId"`
	URL                    string                 `json:"url"`
	CreatedAt              time.Time              `json:"createdAt"`
	FileAnnotations        []FileAnnotation       `json:"fileAnnotations,omitempty"`
	IndustryClassification IndustryClassification `json:"industryClassification"`
}

// Identifier returns the media item's identifier.
func (m Media) Identifier() Identifier {
	return Identifier{ID: m.ID, TypeID: m.TypeID}
}

// MessageIP is the address a thread message was sent from.
type MessageIP struct {
	IP   string `json:"ip"`
	Port int    `json:"port,omitempty"`
}

// ThreadMessage is one message of a reported conversation.
type ThreadMessage struct {
	ContentID     string    `json:"contentId"`
	ContentTypeID string    `json:"contentTypeId"`
	Content       *string   `json:"content,omitempty"`
	CreatorID     string    `json:"creatorId"`
	TargetID      string    `json:"targetId"`
	SentAt        time.Time `json:"sentAt"`
	Type          string    `json:"type"`
	ChatType      string    `json:"chatType"`
	IPAddress     MessageIP `json:"ipAddress"`
}

// Thread is a reported conversation involving the subject.
type Thread struct {
	ThreadID     string          `json:"threadId"`
	ThreadTypeID string          `json:"threadTypeId"`
	Messages     []ThreadMessage `json:"messages"`
}

// ReportRequest is everything a caller supplies to file one report.
type ReportRequest struct {
	OrgID        string       `json:"orgId"`
	Subject      Subject      `json:"subject"`
	Media        []Media      `json:"media"`
	Threads      []Thread     `json:"threads,omitempty"`
	ReviewerID   string       `json:"reviewerId"`
	IncidentType IncidentType `json:"incidentType"`
	// EscalateToHighPriority, when set, must be 1-3000 characters after trimming.
	EscalateToHighPriority *string `json:"escalateToHighPriority,omitempty"`
}

// IncidentTime returns the newest media creation time, or false if there is
// no media.
func (r *ReportRequest) IncidentTime() (time.Time, bool) {
	var newest time.Time
	for i, m := range r.Media {
		if i == 0 || m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	return newest, len(r.Media) > 0
}

// ContactPerson is the optional secondary contact at the reporting org.
type ContactPerson struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// OrgSettings holds an organization's reporting configuration.
type OrgSettings struct {
	OrgID                     string
	Username                  string
	Password                  string
	CompanyTemplate           string
	LegalURL                  string
	ContactEmail              string
	MoreInfoURL               string
	Contact                   ContactPerson
	DefaultInternetDetailType string
	TermsOfService            string
	EnrichmentEndpoint        string
	PreservationEndpoint      string
	UpdatedAt                 time.Time
}

// Complete reports whether the settings carry the fields a submission requires.
func (s *OrgSettings) Complete() bool {
	return s.CompanyTemplate != "" && s.LegalURL != ""
}

// Email is an address attached to a reported person.
type Email struct {
	Address          string
	Type             EmailType
	Verified         *bool
	VerificationDate string
}

// IPCaptureEvent records an IP address seen for a person or file.
type IPCaptureEvent struct {
	IPAddress     string    `json:"ipAddress"`
	EventName     EventName `json:"eventName,omitempty"`
	DateTime      string    `json:"dateTime,omitempty"`
	PossibleProxy bool      `json:"possibleProxy,omitempty"`
	Port          int       `json:"port,omitempty"`
}

// FileHash is a hash the org computed for a reported file.
type FileHash struct {
	Hash     string `json:"hash"`
	HashType string `json:"hashType"`
}

// UserEnrichment is the enrichment record for a reported user.
type UserEnrichment struct {
	ID              string
	TypeID          string
	Emails          []Email
	ScreenName      string
	IPCaptureEvents []IPCaptureEvent
}

// MediaEnrichment is the enrichment record for a reported media item.
type MediaEnrichment struct {
	ID                string
	TypeID            string
	IPCaptureEvents   []IPCaptureEvent
	AdditionalInfo    []string
	FileName          string
	Missing           bool
	PubliclyAvailable *bool
	FileHash          *FileHash
}

// AdditionalFile is a supplemental file the org wants attached to the report.
type AdditionalFile struct {
	FileURL        string
	AdditionalInfo []string
	FileName       string
}

// MessageEnrichment carries the sending IP of a reported message.
type MessageEnrichment struct {
	ID        string
	TypeID    string
	IPAddress string
}

// Enrichment is the org-supplied supplementary data for one report.
type Enrichment struct {
	Users           []UserEnrichment
	Media           []MediaEnrichment
	Messages        []MessageEnrichment
	AdditionalFiles []AdditionalFile
	AdditionalInfo  string
}

// User returns the enrichment record for id, or nil.
func (e *Enrichment) User(id Identifier) *UserEnrichment {
	for i := range e.Users {
		if e.Users[i].ID == id.ID && e.Users[i].TypeID == id.TypeID {
			return &e.Users[i]
		}
	}
	return nil
}

// MediaFor returns the enrichment record for id, or nil.
func (e *Enrichment) MediaFor(id Identifier) *MediaEnrichment {
	for i := range e.Media {
		if e.Media[i].ID == id.ID && e.Media[i].TypeID == id.TypeID {
			return &e.Media[i]
		}
	}
	return nil
}

// MediaArtifact is the record of one uploaded media file.
type MediaArtifact struct {
	ID     string `json:"id"`
	TypeID string `json:"typeId"`
	FileID string `json:"fileId"`
	XML    string `json:"xml"`
}

// AdditionalFileArtifact is the record of one uploaded supplemental file.
type AdditionalFileArtifact struct {
	URL    string `json:"url"`
	FileID string `json:"fileId"`
	XML    string `json:"xml"`
}

// ThreadArtifact is the record of one uploaded conversation transcript.
type ThreadArtifact struct {
	FileName string `json:"fileName"`
	FileID   string `json:"fileId"`
	CSV      string `json:"csv"`
}

// StoredReport is the immutable audit record of a completed submission.
type StoredReport struct {
	ID              string
	OrgID           string
	ReportID        string
	SubjectID       string
	SubjectTypeID   string
	ReviewerID      string
	Media           []MediaArtifact          // stored as JSON in DB
	AdditionalFiles []AdditionalFileArtifact // stored as JSON in DB
	Threads         []ThreadArtifact         // stored as JSON in DB
	ReportXML       string
	IncidentType    IncidentType
	IsTest          bool
	CreatedAt       time.Time
}

// ReportedSubject is one (subject, org) pair with a production report.
type ReportedSubject struct {
	OrgID         string
	SubjectID     string
	SubjectTypeID string
}
