package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bodyPart struct {
	field       string
	content     string
	isFile      bool
	filename    string
	contentType string
}

func field(name, value string) bodyPart {
	return bodyPart{field: name, content: value}
}

func filePart(name, filename, contentType, content string) bodyPart {
	return bodyPart{field: name, filename: filename, contentType: contentType, content: content, isFile: true}
}

func buildBody(t *testing.T, parts ...bodyPart) *multipart.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if !p.isFile {
			fw, err := w.CreateFormField(p.field)
			require.NoError(t, err)
			_, err = fw.Write([]byte(p.content))
			require.NoError(t, err)
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		fw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return multipart.NewReader(&buf, w.Boundary())
}

type fakeStore struct {
	containerExists bool
	containerErr    error
	streamErr       error

	streams map[string][]byte
	blobs   map[string][]byte
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		containerExists: true,
		streams:         make(map[string][]byte),
		blobs:           make(map[string][]byte),
	}
}

func (f *fakeStore) ContainerExists(context.Context) (bool, error) {
	return f.containerExists, f.containerErr
}

func (f *fakeStore) UploadStream(_ context.Context, key string, r io.Reader, _ string) (int64, error) {
	f.calls++
	if f.streamErr != nil {
		return 0, f.streamErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	f.streams[key] = data
	return int64(len(data)), nil
}

func (f *fakeStore) UploadBytes(_ context.Context, key string, data []byte, _ string) error {
	f.blobs[key] = data
	return nil
}

func newTestCoordinator(store BlobStore, maxSize int64) *Coordinator {
	sess := NewSession(testIdentity, time.Now())
	cfg := Config{MaxFileSize: maxSize, AllowedExtensions: testExtensions, UploadTimeout: time.Minute}
	return NewCoordinator(store, cfg, sess, zerolog.Nop())
}

func dataPathFor(filename string) string {
	return fmt.Sprintf("%s/LA_Data/100-Testshire/%s", time.Now().UTC().Format("20060102"), filename)
}

func TestCoordinatorSuccess(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)
	content := strings.Repeat("r", 200)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		field("electorType", "overseas"),
		filePart("fileUpload", "My File.csv", "text/csv", content),
	))

	require.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.False(t, outcome.Errors.Any())
	require.NotNil(t, outcome.Banner)
	assert.Equal(t, "success", outcome.Banner.Type)
	assert.Equal(t, "File upload successful.", outcome.Banner.Message)

	dataPath := dataPathFor("My_File.csv")
	require.Contains(t, store.streams, dataPath)
	assert.Equal(t, []byte(content), store.streams[dataPath])

	sess := c.Session()
	assert.True(t, sess.FileUploadSuccessful)
	assert.True(t, sess.MetadataUploadSuccessful)
	assert.False(t, sess.Aborted)
	assert.EqualValues(t, 200, sess.UploadBytesReceived)
	assert.EqualValues(t, 200, sess.FileSize)

	metadataPath := sess.MetadataFolder + "/My_File.csv_metadata.txt"
	require.Contains(t, store.blobs, metadataPath)
	record := string(store.blobs[metadataPath])
	assert.Contains(t, record, "LA Name: Testshire\n")
	assert.Contains(t, record, "Format: Express\n")
	assert.Contains(t, record, "File Type: csv\n")
}

func TestCoordinatorRejectsDisallowedExtension(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "payload.exe", "application/octet-stream", "MZ..."),
	))

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	assert.Equal(t, MsgInvalidFileType, outcome.Errors.FileUpload)
	assert.Equal(t, MsgInvalidFileType, outcome.Errors.Fields()["fileUpload"])
	assert.Zero(t, store.calls, "no remote write may occur for an invalid upload")
	assert.Empty(t, store.blobs)
	assert.Equal(t, "Express", outcome.FormFields["dataFormat"])
	assert.False(t, c.Session().FileUploadSuccessful)
}

func TestCoordinatorMissingDataFormatShortCircuits(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)

	// The required field arrives after the file part; policy is to fail
	// validation with what has been collected, not to buffer and wait.
	outcome := c.Run(context.Background(), buildBody(t,
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "register.csv", "text/csv", "a,b,c"),
		field("dataFormat", "Express"),
	))

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	assert.Equal(t, MsgDataFormatRequired, outcome.Errors.DataFormat)
	assert.Zero(t, store.calls)
}

func TestCoordinatorSizeLimitAborts(t *testing.T) {
	store := newFakeStore()
	const maxSize = 100
	c := newTestCoordinator(store, maxSize)

	body := buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "register.csv", "text/csv", strings.Repeat("x", maxSize+1)),
		field("otherInformation", "trailing field still parsed"),
	)
	outcome := c.Run(context.Background(), body)

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	sess := c.Session()
	assert.True(t, sess.Aborted)
	assert.False(t, sess.FileUploadSuccessful)
	assert.Equal(t, MsgFileTooLarge, outcome.Errors.FileUpload)
	require.NotNil(t, outcome.Banner)
	assert.Equal(t, "error", outcome.Banner.Type)
	assert.Empty(t, store.streams, "aborted upload must not commit a blob")

	// The request body was fully consumed; trailing parts were reachable.
	_, err := body.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCoordinatorTransferErrorAborts(t *testing.T) {
	store := newFakeStore()
	store.streamErr = errors.New("connection reset")
	c := newTestCoordinator(store, 100<<20)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "register.csv", "text/csv", "a,b,c"),
	))

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	sess := c.Session()
	assert.True(t, sess.Aborted)
	assert.False(t, sess.FileUploadSuccessful)
	require.NotNil(t, outcome.Banner)
	assert.Equal(t, "File upload failed.", outcome.Banner.Message)
	assert.Empty(t, store.blobs, "no metadata companion after a failed transfer")
}

func TestCoordinatorContainerMissingIsFatal(t *testing.T) {
	store := newFakeStore()
	store.containerExists = false
	c := newTestCoordinator(store, 100<<20)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "register.csv", "text/csv", "a,b,c"),
	))

	require.Equal(t, OutcomeFatal, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrStorageUnavailable)
	assert.Zero(t, store.calls)
	assert.Empty(t, store.blobs)
}

func TestCoordinatorSecondFilePartDrained(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "first.csv", "text/csv", "first"),
		filePart("fileUpload", "second.csv", "text/csv", "second"),
	))

	require.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 1, store.calls, "only the first file stream may be processed")
	assert.Equal(t, []byte("first"), store.streams[dataPathFor("first.csv")])
	assert.Equal(t, "first.csv", c.Session().FileName)
}

func TestCoordinatorEmptyFilenameInvalid(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "", "application/octet-stream", "orphan bytes"),
	))

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	assert.Equal(t, MsgFileRequired, outcome.Errors.FileUpload)
	assert.Zero(t, store.calls)
	sess := c.Session()
	assert.Empty(t, sess.FileName)
	assert.Empty(t, sess.FileExtension)
	assert.Empty(t, sess.FileMimeType)
}

func TestCoordinatorNoFilePart(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
	))

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	assert.Equal(t, MsgFileRequired, outcome.Errors.FileUpload)
	assert.Zero(t, store.calls)
}

func TestCoordinatorFieldsAfterFileStillCollected(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)

	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "register.csv", "text/csv", "a,b,c"),
		field("otherInformation", "arrived after the file"),
	))

	require.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "arrived after the file", c.Session().OtherInformation)

	metadataPath := c.Session().MetadataPath
	require.Contains(t, store.blobs, metadataPath)
	assert.Contains(t, string(store.blobs[metadataPath]), "Other Information: arrived after the file\n")
}

func TestCoordinatorInvalidFileLatchesLaterFiles(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100<<20)

	// A rejected first file must reject the whole request; a valid file
	// smuggled in behind it is drained, not streamed.
	outcome := c.Run(context.Background(), buildBody(t,
		field("dataFormat", "Express"),
		field("citizensOverAge", "yes"),
		filePart("fileUpload", "payload.exe", "application/octet-stream", "MZ..."),
		filePart("fileUpload", "register.csv", "text/csv", "a,b,c"),
	))

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	assert.Equal(t, MsgInvalidFileType, outcome.Errors.FileUpload)
	assert.Zero(t, store.calls, "no remote write may occur for an invalid upload")
	assert.Empty(t, store.streams)
	assert.Empty(t, store.blobs)
	assert.False(t, c.Session().FileUploadSuccessful)
}

func TestCoordinatorTruncatedBodyAfterAbortStaysInvalid(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, 100)

	// Body cut off mid-drain, as happens when an outer byte cap closes the
	// request while the over-limit remainder is being discarded. The size
	// verdict must survive; only an error before any verdict is fatal.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("dataFormat", "Express"))
	require.NoError(t, w.WriteField("citizensOverAge", "yes"))
	fw, err := w.CreateFormFile("fileUpload", "register.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(strings.Repeat("r", 300)))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	truncated := buf.Bytes()[:buf.Len()-12]

	outcome := c.Run(context.Background(), multipart.NewReader(bytes.NewReader(truncated), w.Boundary()))

	require.Equal(t, OutcomeInvalid, outcome.Kind)
	assert.Equal(t, MsgFileTooLarge, outcome.Errors.FileUpload)
	require.NotNil(t, outcome.Banner)
	assert.Equal(t, "File upload failed.", outcome.Banner.Message)
	assert.True(t, c.Session().Aborted)
	assert.Empty(t, store.streams)
}
