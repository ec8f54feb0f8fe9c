package upload

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/dharsanguruparan/er-portal/internal/auth"
)

var testIdentity = auth.Identity{
	LACode:   "100",
	LAName:   "Testshire",
	Username: "clerk",
	Email:    "clerk@example.gov.uk",
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My File.csv", "My_File.csv"},
		{"my  file\t2024.csv", "my_file_2024.csv"},
		{"already_clean-1.2.txt", "already_clean-1.2.txt"},
		{"we/ird%na$me!.xlsx", "weirdname.xlsx"},
		{"", ""},
	}
	for _, tc := range cases {
		got := SanitizeFilename(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		assert.Equal(t, got, SanitizeFilename(got), "sanitization must be idempotent for %q", tc.in)
	}
}

func TestSanitizeFilenameCharset(t *testing.T) {
	out := SanitizeFilename("a béß/$%^&*()c.zip")
	for _, r := range out {
		ok := r == '_' || r == '.' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		assert.True(t, ok, "unexpected rune %q in %q", r, out)
	}
}

func TestNewSessionDerivesPaths(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	sess := NewSession(testIdentity, now)

	assert.Equal(t, "20260901", sess.DateFolder)
	assert.Equal(t, "20260901/LA_Data/100-Testshire", sess.DataFolder)
	assert.Equal(t, "20260901/LA_Data/100-Testshire/metadata", sess.MetadataFolder)

	sess.AttachDescriptor("My File.csv", "text/csv")
	sess.BindDataPath()
	sess.BindMetadataPath()
	assert.Equal(t, "20260901/LA_Data/100-Testshire/My_File.csv", sess.DataPath)
	assert.Equal(t, "20260901/LA_Data/100-Testshire/metadata/My_File.csv_metadata.txt", sess.MetadataPath)
}

func TestSetFieldStickyAliases(t *testing.T) {
	sess := NewSession(testIdentity, time.Now())
	log := zerolog.Nop()

	// First successfully parsed value for a logical field is sticky.
	sess.SetField("dataFormat", "Express", log)
	sess.SetField("dataFormatVal", "Strand", log)
	assert.Equal(t, "Express", sess.DataFormat)

	// The alias can seed an empty base field.
	sess.SetField("citizensOverAgeVal", "yes", log)
	sess.SetField("citizensOverAge", "no", log)
	assert.Equal(t, "yes", sess.CitizensOverAge)
}

func TestSetFieldElectorTypes(t *testing.T) {
	sess := NewSession(testIdentity, time.Now())
	log := zerolog.Nop()

	sess.SetField("electorType", "overseas", log)
	sess.SetField("electorType", "crown", log)
	sess.SetField("electorType", "overseas", log)
	assert.Equal(t, []string{"overseas", "crown"}, sess.ElectorTypes)

	// The denormalized list replaces individual tags wholesale.
	sess.SetField("electorTypesVal", "a, b ,c", log)
	assert.Equal(t, []string{"a", "b", "c"}, sess.ElectorTypes)
	assert.Equal(t, "a, b ,c", sess.FormValues()["electorTypes"])
}

func TestSetFieldFileSize(t *testing.T) {
	sess := NewSession(testIdentity, time.Now())
	log := zerolog.Nop()

	sess.SetField("fileSizeVal", " 2048 ", log)
	assert.EqualValues(t, 2048, sess.FileSize)

	// Unparseable values are logged and ignored, not fatal.
	sess.SetField("fileSizeVal", "not-a-number", log)
	assert.EqualValues(t, 2048, sess.FileSize)
}

func TestSetFieldFilenameSanitized(t *testing.T) {
	sess := NewSession(testIdentity, time.Now())
	sess.SetField("filename", "My Register File.csv", zerolog.Nop())
	assert.Equal(t, "My_Register_File.csv", sess.FileName)
	assert.Equal(t, "My_Register_File.csv", sess.FormValues()["fileName"])
}

func TestAttachDescriptor(t *testing.T) {
	sess := NewSession(testIdentity, time.Now())
	sess.AttachDescriptor(" Register.XLSX ", "application/vnd.ms-excel")
	assert.Equal(t, "Register.XLSX", sess.FileName)
	assert.Equal(t, ".xlsx", sess.FileExtension)
	assert.Equal(t, "application/vnd.ms-excel", sess.FileMimeType)

	sess.ClearDescriptor()
	assert.Empty(t, sess.FileName)
	assert.Empty(t, sess.FileExtension)
	assert.Empty(t, sess.FileMimeType)
}
