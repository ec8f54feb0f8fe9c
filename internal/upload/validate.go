package upload

// Validation messages surfaced next to their form fields.
const (
	MsgFileRequired            = "Select a file to upload"
	MsgInvalidFileType         = "invalid file type"
	MsgFileTooLarge            = "The selected file must be smaller than 100MB"
	MsgDataFormatRequired      = "Select the format of your data"
	MsgCitizensOverAgeRequired = "Select yes if your data includes citizens over the age threshold"
	MsgOtherInformationTooLong = "Other information is too long"
)

// electorTypeOverflowLimit is the ceiling on elector-type tags applied when
// no free-text other-information was supplied. Ported rule: the tag list acts
// as an overflow proxy for free-text length.
const electorTypeOverflowLimit = 200

// ValidationErrors is the fixed set of validation slots. A non-empty slot
// means the upload is invalid.
type ValidationErrors struct {
	FileUpload       string
	DataFormat       string
	CitizensOverAge  string
	OtherInformation string
}

// Any reports whether at least one slot is populated.
func (v ValidationErrors) Any() bool {
	return v.FileUpload != "" || v.DataFormat != "" || v.CitizensOverAge != "" || v.OtherInformation != ""
}

// Fields returns the populated slots keyed by the form field names the
// templates render against.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string)
	if v.FileUpload != "" {
		out["fileUpload"] = v.FileUpload
	}
	if v.DataFormat != "" {
		out["dataFormat"] = v.DataFormat
	}
	if v.CitizensOverAge != "" {
		out["citizensOverAgeYes"] = v.CitizensOverAge
	}
	if v.OtherInformation != "" {
		out["otherInformation"] = v.OtherInformation
	}
	return out
}

// Validate evaluates the batch of rules against whatever metadata has been
// collected when the file part arrives. Required metadata that has not
// arrived yet fails validation; the coordinator does not buffer and wait.
func Validate(s *Session, maxFileSize int64, allowedExtensions []string) ValidationErrors {
	var errs ValidationErrors

	if s.FileName == "" {
		errs.FileUpload = MsgFileRequired
	}
	if s.FileExtension != "" && !contains(allowedExtensions, s.FileExtension) {
		errs.FileUpload = MsgInvalidFileType
	}
	if s.FileSize > maxFileSize {
		errs.FileUpload = MsgFileTooLarge
	}
	if s.DataFormat == "" {
		errs.DataFormat = MsgDataFormatRequired
	}
	if s.CitizensOverAge == "" {
		errs.CitizensOverAge = MsgCitizensOverAgeRequired
	}
	if s.OtherInformation == "" && len(s.ElectorTypes) > electorTypeOverflowLimit {
		errs.OtherInformation = MsgOtherInformationTooLong
	}
	return errs
}
