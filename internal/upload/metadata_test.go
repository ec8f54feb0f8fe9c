package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildMetadata(t *testing.T) {
	sess := NewSession(testIdentity, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	sess.DataFormat = "Express"
	sess.CitizensOverAge = "yes"
	sess.ElectorTypes = []string{"overseas", "crown"}
	sess.OtherInformation = "partial re-canvass"
	sess.AttachDescriptor("register.csv", "text/csv")

	now := time.Date(2026, 9, 1, 14, 5, 9, 0, time.UTC)
	got := BuildMetadata(sess, now)

	want := "LA Name: Testshire\n" +
		"Format: Express\n" +
		"File Type: csv\n" +
		"Over 76: yes\n" +
		"Other Flags: overseas,crown\n" +
		"Other Information: partial re-canvass\n" +
		"\n" +
		"User Name: clerk\n" +
		"User Email: clerk@example.gov.uk\n" +
		"\n" +
		"Date/Time: 1 Sep 2026 14:05:09"
	assert.Equal(t, want, got)
}

func TestBuildMetadataDeterministic(t *testing.T) {
	sess := NewSession(testIdentity, time.Now())
	sess.AttachDescriptor("r.csv", "text/csv")
	now := time.Now()
	assert.Equal(t, BuildMetadata(sess, now), BuildMetadata(sess, now))
}
