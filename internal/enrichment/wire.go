package enrichment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/go-playground/validator/v10"
)

// Wire shapes of the enrichment response. Required fields are pointers so
// validate can tell absent from empty. Enumerations must match the values in
// model. Unknown properties are ignored.

type wireResponse struct {
	Users           *[]wireUser          `json:"users" validate:"required,dive"`
	Media           []wireMedia          `json:"media" validate:"dive"`
	Messages        []wireMessage        `json:"messages" validate:"dive"`
	AdditionalFiles []wireAdditionalFile `json:"additionalFiles" validate:"dive"`
	AdditionalInfo  string               `json:"additionalInfo"`
}

type wireUser struct {
	ID             *string         `json:"id" validate:"required"`
	TypeID         *string         `json:"typeId" validate:"required"`
	Email          []wireEmail     `json:"email" validate:"dive"`
	ScreenName     string          `json:"screenName"`
	IPCaptureEvent []wireIPEvent   `json:"ipCaptureEvent" validate:"dive"`
	Data           *map[string]any `json:"data"`
}

type wireEmail struct {
	Email            *string `json:"email" validate:"required"`
	Type             string  `json:"type" validate:"omitempty,oneof=Home Work Business"`
	Verified         *bool   `json:"verified"`
	VerificationDate string  `json:"verificationDate"`
}

type wireIPEvent struct {
	IPAddress     *string `json:"ipAddress" validate:"required"`
	EventName     string  `json:"eventName" validate:"omitempty,oneof=Login Registration Purchase Upload Other Unknown"`
	DateTime      string  `json:"dateTime"`
	PossibleProxy bool    `json:"possibleProxy"`
	Port          int     `json:"port"`
}

type wireMedia struct {
	ID                *string       `json:"id" validate:"required"`
	TypeID            *string       `json:"typeId" validate:"required"`
	IPCaptureEvent    []wireIPEvent `json:"ipCaptureEvent" validate:"dive"`
	AdditionalInfo    []string      `json:"additionalInfo"`
	FileName          string        `json:"fileName"`
	Missing           bool          `json:"missing"`
	PubliclyAvailable *bool         `json:"publiclyAvailable"`
	FileDetails       *wireFileHash `json:"fileDetails"`
}

type wireFileHash struct {
	Hash     *string `json:"hash" validate:"required"`
	HashType *string `json:"hashType" validate:"required"`
}

type wireMessage struct {
	ID        *string `json:"id" validate:"required"`
	TypeID    *string `json:"typeId" validate:"required"`
	IPAddress *string `json:"ipAddress" validate:"required"`
}

type wireAdditionalFile struct {
	FileURL        *string  `json:"fileUrl" validate:"required"`
	AdditionalInfo []string `json:"additionalInfo"`
	FileName       string   `json:"fileName"`
}

var schema = newSchema()

func newSchema() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidResponse, fmt.Sprintf(format, args...))
}

// validate enforces required fields and enumerations. Type mismatches
// (a string port, say) already failed during decoding.
func (r *wireResponse) validate() error {
	err := schema.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "oneof" {
			return invalid("%s: unknown value %q", fe.Namespace(), fe.Value())
		}
		return invalid("%s is %s", fe.Namespace(), fe.Tag())
	}
	return invalid("%v", err)
}

// allMediaMissing reports whether the org returned media and flagged every
// entry missing.
func (r *wireResponse) allMediaMissing() bool {
	if len(r.Media) == 0 {
		return false
	}
	for _, m := range r.Media {
		if !m.Missing {
			return false
		}
	}
	return true
}

func (r *wireResponse) toModel() *model.Enrichment {
	enr := &model.Enrichment{AdditionalInfo: r.AdditionalInfo}
	for _, u := range *r.Users {
		ue := model.UserEnrichment{
			ID:              *u.ID,
			TypeID:          *u.TypeID,
			ScreenName:      u.ScreenName,
			IPCaptureEvents: events(u.IPCaptureEvent),
		}
		for _, e := range u.Email {
			ue.Emails = append(ue.Emails, model.Email{
				Address:          *e.Email,
				Type:             model.EmailType(e.Type),
				Verified:         e.Verified,
				VerificationDate: e.VerificationDate,
			})
		}
		enr.Users = append(enr.Users, ue)
	}
	for _, m := range r.Media {
		if m.Missing {
			continue
		}
		me := model.MediaEnrichment{
			ID:                *m.ID,
			TypeID:            *m.TypeID,
			IPCaptureEvents:   events(m.IPCaptureEvent),
			AdditionalInfo:    m.AdditionalInfo,
			FileName:          m.FileName,
			PubliclyAvailable: m.PubliclyAvailable,
		}
		if m.FileDetails != nil {
			me.FileHash = &model.FileHash{Hash: *m.FileDetails.Hash, HashType: *m.FileDetails.HashType}
		}
		enr.Media = append(enr.Media, me)
	}
	for _, msg := range r.Messages {
		enr.Messages = append(enr.Messages, model.MessageEnrichment{
			ID:        *msg.ID,
			TypeID:    *msg.TypeID,
			IPAddress: *msg.IPAddress,
		})
	}
	for _, f := range r.AdditionalFiles {
		enr.AdditionalFiles = append(enr.AdditionalFiles, model.AdditionalFile{
			FileURL:        *f.FileURL,
			AdditionalInfo: f.AdditionalInfo,
			FileName:       f.FileName,
		})
	}
	return enr
}

func events(in []wireIPEvent) []model.IPCaptureEvent {
	var out []model.IPCaptureEvent
	for _, ev := range in {
		out = append(out, model.IPCaptureEvent{
			IPAddress:     *ev.IPAddress,
			EventName:     model.EventName(ev.EventName),
			DateTime:      ev.DateTime,
			PossibleProxy: ev.PossibleProxy,
			Port:          ev.Port,
		})
	}
	return out
}
