package report

import (
	"github.com/endharassment/cybertip-reporter/internal/model"
)

// FileRelevanceSupplemental marks files the org attached beyond the reported media.
const FileRelevanceSupplemental = "Supplemental Reported"

// DetailTypeHash tags a details entry carrying a file hash.
const DetailTypeHash = "HASH"

// Notes attached to uploaded conversation transcripts.
const (
	PrivateThreadNote = "File contains transcript of a private message conversation involving suspect."
	GroupThreadNote   = "File contains transcript of a group message conversation involving suspect."
)

func boolPtr(b bool) *bool { return &b }

// MediaFileDetails builds the details document for an uploaded media file.
// enr may be nil when the org supplied no enrichment for the item.
func MediaFileDetails(reportID, fileID string, media model.Media, enr *model.MediaEnrichment) *FileDetails {
	fd := &FileDetails{
		ReportID:               reportID,
		FileID:                 fileID,
		FileViewedByESP:        boolPtr(true),
		ExifViewedByESP:        boolPtr(true),
		FileAnnotations:        Annotations(media.FileAnnotations),
		IndustryClassification: string(media.IndustryClassification),
	}
	if enr == nil {
		return fd
	}
	fd.PubliclyAvailable = enr.PubliclyAvailable
	fd.IPCaptureEvents = ipCaptureEvents(enr.IPCaptureEvents)
	if enr.FileHash != nil {
		fd.Details = []Detail{{
			Type:          DetailTypeHash,
			NameValuePair: NameValuePair{Name: enr.FileHash.HashType, Value: enr.FileHash.Hash},
		}}
	}
	if len(enr.AdditionalInfo) > 0 {
		fd.AdditionalInfo = enr.AdditionalInfo
	}
	return fd
}

// AdditionalFileDetails builds the details document for a supplemental file.
func AdditionalFileDetails(reportID, fileID string, file model.AdditionalFile) *FileDetails {
	return &FileDetails{
		ReportID:        reportID,
		FileID:          fileID,
		FileViewedByESP: boolPtr(true),
		FileRelevance:   FileRelevanceSupplemental,
		AdditionalInfo:  file.AdditionalInfo,
	}
}

// ThreadFileDetails builds the details document for an uploaded transcript.
// Threads whose type is privateThreadTypeID are described as private
// conversations, everything else as group conversations.
func ThreadFileDetails(reportID, fileID string, thread model.Thread, privateThreadTypeID string) *FileDetails {
	note := GroupThreadNote
	if privateThreadTypeID != "" && thread.ThreadTypeID == privateThreadTypeID {
		note = PrivateThreadNote
	}
	return &FileDetails{
		ReportID:        reportID,
		FileID:          fileID,
		FileViewedByESP: boolPtr(true),
		AdditionalInfo:  []string{note},
	}
}

// Annotations maps reviewer annotations to their marker elements. Unknown
// annotations are ignored. The result is never nil.
func Annotations(in []model.FileAnnotation) *FileAnnotations {
	fa := &FileAnnotations{}
	for _, a := range in {
		switch a {
		case model.AnnotationAnimeDrawingVirtualHentai:
			fa.AnimeDrawingVirtualHentai = &Marker{}
		case model.AnnotationPotentialMeme:
			fa.PotentialMeme = &Marker{}
		case model.AnnotationViral:
			fa.Viral = &Marker{}
		case model.AnnotationPossibleSelfProduction:
			fa.PossibleSelfProduction = &Marker{}
		case model.AnnotationPhysicalHarm:
			fa.PhysicalHarm = &Marker{}
		case model.AnnotationViolenceGore:
			fa.ViolenceGore = &Marker{}
		case model.AnnotationBestiality:
			fa.Bestiality = &Marker{}
		case model.AnnotationLiveStreaming:
			fa.LiveStreaming = &Marker{}
		case model.AnnotationInfant:
			fa.Infant = &Marker{}
		case model.AnnotationGenerativeAI:
			fa.GenerativeAI = &Marker{}
		}
	}
	return fa
}
