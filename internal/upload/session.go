// Package upload implements the portal's chunked file-upload pipeline: a
// streaming multipart coordinator that validates form metadata, streams the
// register file to the object store in bounded chunks, and writes a companion
// metadata record. One Session exists per POST request and is owned
// exclusively by that request's handler.
package upload

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/er-portal/internal/auth"
)

// Session is the mutable record accumulated across one multipart stream's
// lifetime. Identity fields are set once from the trusted session and never
// from request data; storage paths are derived from identity plus the
// sanitized filename only.
type Session struct {
	// Identity, immutable once set.
	LACode    string
	LAName    string
	UserName  string
	UserEmail string

	// Submitted metadata.
	DataFormat       string
	CitizensOverAge  string
	ElectorTypes     []string
	OtherInformation string

	// File descriptor.
	FileName      string
	FileSize      int64
	FileMimeType  string
	FileExtension string

	// Derived storage paths, computed once.
	DateFolder     string
	DataFolder     string
	MetadataFolder string
	DataPath       string
	MetadataPath   string

	// Progress and outcome. The boolean flags are write-once: there is no
	// rollback, only forward progress.
	UploadBytesReceived      int64
	FileUploadSuccessful     bool
	MetadataUploadSuccessful bool
	Aborted                  bool

	fileAttached bool
	formValues   map[string]string
}

// NewSession builds a session from the trusted identity and derives the
// date-partitioned folder names.
func NewSession(ident auth.Identity, now time.Time) *Session {
	s := &Session{
		LACode:     ident.LACode,
		LAName:     ident.LAName,
		UserName:   ident.Username,
		UserEmail:  ident.Email,
		DateFolder: now.UTC().Format("20060102"),
		formValues: make(map[string]string),
	}
	s.DataFolder = fmt.Sprintf("%s/LA_Data/%s-%s", s.DateFolder, s.LACode, s.LAName)
	s.MetadataFolder = s.DataFolder + "/metadata"
	return s
}

// Field names accepted by SetField. The *Val aliases are denormalized hidden
// inputs the form client submits alongside the plain fields; for dataFormat
// and citizensOverAge the first successfully parsed value is sticky.
const (
	fieldFileSizeVal         = "fileSizeVal"
	fieldDataFormat          = "dataFormat"
	fieldDataFormatVal       = "dataFormatVal"
	fieldCitizensOverAge     = "citizensOverAge"
	fieldCitizensOverAgeVal  = "citizensOverAgeVal"
	fieldElectorType         = "electorType"
	fieldElectorTypesVal     = "electorTypesVal"
	fieldOtherInformation    = "otherInformation"
	fieldOtherInformationVal = "otherInformationVal"
	fieldFilename            = "filename"
)

// SetField routes one trimmed form value into the session. Unknown fields
// are ignored.
func (s *Session) SetField(name, value string, log zerolog.Logger) {
	value = strings.TrimSpace(value)

	switch name {
	case fieldFileSizeVal:
		if value == "" {
			return
		}
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			log.Error().Err(err).Str("fieldValue", value).Str("laCode", s.LACode).
				Msg("error parsing fileSize value")
			return
		}
		s.FileSize = size
	case fieldDataFormat, fieldDataFormatVal:
		if s.DataFormat == "" {
			s.DataFormat = value
			s.formValues["dataFormat"] = value
		}
	case fieldCitizensOverAge, fieldCitizensOverAgeVal:
		if s.CitizensOverAge == "" {
			s.CitizensOverAge = value
			s.formValues["citizensOverAge"] = value
		}
	case fieldElectorType:
		if !contains(s.ElectorTypes, value) {
			s.ElectorTypes = append(s.ElectorTypes, value)
		}
	case fieldElectorTypesVal:
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		s.ElectorTypes = parts
		s.formValues["electorTypes"] = value
	case fieldOtherInformation, fieldOtherInformationVal:
		s.OtherInformation = value
		s.formValues["otherInformation"] = value
	case fieldFilename:
		s.FileName = SanitizeFilename(value)
		s.formValues["fileName"] = s.FileName
	}
}

// AttachDescriptor records the file part's name, MIME type, and lower-cased
// extension. The blob path always uses the sanitized name.
func (s *Session) AttachDescriptor(fileName, mimeType string) {
	trimmed := strings.TrimSpace(fileName)
	s.FileName = SanitizeFilename(trimmed)
	s.FileMimeType = mimeType
	s.FileExtension = strings.ToLower(path.Ext(trimmed))
}

// ClearDescriptor resets the file fields when a file part arrives without a
// filename.
func (s *Session) ClearDescriptor() {
	s.FileName = ""
	s.FileMimeType = ""
	s.FileExtension = ""
}

// MarkFileAttached flips the single-acquisition guard; any later file part on
// the same request is drained and ignored.
func (s *Session) MarkFileAttached() {
	s.fileAttached = true
}

// FileAttached reports whether a file stream has already been claimed.
func (s *Session) FileAttached() bool {
	return s.fileAttached
}

// BindDataPath fixes the data blob path. Called once, after validation, just
// before the streaming write begins.
func (s *Session) BindDataPath() {
	s.DataPath = s.DataFolder + "/" + s.FileName
}

// BindMetadataPath fixes the companion record path.
func (s *Session) BindMetadataPath() {
	s.MetadataPath = s.MetadataFolder + "/" + s.FileName + "_metadata.txt"
}

// AddBytesReceived bumps the monotonically increasing byte counter.
func (s *Session) AddBytesReceived(n int64) {
	s.UploadBytesReceived += n
}

// FormValues returns the submitted values queued for form re-display.
func (s *Session) FormValues() map[string]string {
	return s.formValues
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	disallowedRune = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// SanitizeFilename collapses whitespace runs to a single underscore and
// strips every character outside [A-Za-z0-9_.-]. It is idempotent.
func SanitizeFilename(name string) string {
	name = whitespaceRun.ReplaceAllString(name, "_")
	return disallowedRune.ReplaceAllString(name, "")
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
