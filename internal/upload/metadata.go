package upload

import (
	"context"
	"strings"
	"time"

	"github.com/dharsanguruparan/er-portal/internal/metrics"
)

// metadataTimeLayout renders the artifact timestamp, e.g. "2 Sep 2026 14:05:09".
const metadataTimeLayout = "2 Jan 2006 15:04:05"

// BuildMetadata serializes the finalized session into the deterministic
// companion record stored next to the data file.
func BuildMetadata(s *Session, now time.Time) string {
	var b strings.Builder
	b.WriteString("LA Name: " + s.LAName + "\n")
	b.WriteString("Format: " + s.DataFormat + "\n")
	b.WriteString("File Type: " + strings.TrimPrefix(s.FileExtension, ".") + "\n")
	b.WriteString("Over 76: " + s.CitizensOverAge + "\n")
	b.WriteString("Other Flags: " + strings.Join(s.ElectorTypes, ",") + "\n")
	b.WriteString("Other Information: " + s.OtherInformation + "\n")
	b.WriteString("\n")
	b.WriteString("User Name: " + s.UserName + "\n")
	b.WriteString("User Email: " + s.UserEmail + "\n")
	b.WriteString("\n")
	b.WriteString("Date/Time: " + now.Format(metadataTimeLayout))
	return b.String()
}

// WriteMetadata uploads the companion record. The data blob is already
// committed when this runs; a failure here is logged and counted but does not
// invalidate the upload. Partial success (data present, metadata missing) is
// an accepted, observable outcome.
func (c *Coordinator) WriteMetadata(ctx context.Context) {
	c.sess.BindMetadataPath()

	c.log.Info().
		Str("filePath", c.sess.MetadataPath).
		Msg("creating metadata file")

	record := BuildMetadata(c.sess, time.Now())
	if err := c.store.UploadBytes(ctx, c.sess.MetadataPath, []byte(record), "text/plain; charset=utf-8"); err != nil {
		c.log.Error().Err(err).
			Str("filePath", c.sess.MetadataPath).
			Str("fileName", c.sess.FileName).
			Msg("metadata file upload failed")
		metrics.MetadataWriteFailures.Inc()
		return
	}
	c.sess.MetadataUploadSuccessful = true
	c.log.Info().
		Str("filePath", c.sess.MetadataPath).
		Msg("metadata file upload successful")
}
