package feedback

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/anonymiser/pkg/storage"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

const testDBFile = "test_feedback.sqlite"

func setup(t *testing.T) *Store {
	t.Helper()
	cleanupDB()
	t.Cleanup(cleanupDB)
	log := logs.NewTestingLog(t)
	blobs, err := storage.NewStorageFS(log, t.TempDir())
	require.NoError(t, err)
	s, err := Open(log, dbh.MakeSqliteConfig(testDBFile), blobs)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func cleanupDB() {
	os.Remove(testDBFile)
	os.Remove(testDBFile + "-shm")
	os.Remove(testDBFile + "-wal")
}

func testRecord() *nn.Prediction {
	return &nn.Prediction{
		ClassNames: []string{"person", "car"},
		NameToID:   map[string]int{"person": 0, "car": 1},
		Classes:    []int{0, 1},
		Labels:     []string{"person", "car"},
		Scores:     []float64{0.9, 0.8},
		Boxes:      []nn.Box{{0, 0, 4, 4}, {4, 4, 8, 8}},
		Masks:      []*nn.Mask{},
		Instances:  []int{0, 0},
	}
}

func testImage() *cimg.Image {
	img := cimg.NewImage(16, 8, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = 128
	}
	return img
}

func TestStoreAndLoad(t *testing.T) {
	s := setup(t)
	pred := testRecord()
	require.NoError(t, pred.AddLabeledBox(nn.Box{1, 1, 3, 3}, "car"))

	sub, err := s.StoreImageWithPredictions(testImage(), pred, "static")
	require.NoError(t, err)
	require.True(t, sub.HasImage)
	require.Equal(t, 3, sub.NumObjects)
	require.NotContains(t, sub.Folder, ":")

	img, loaded, err := s.LoadImageWithPredictions(sub.Folder)
	require.NoError(t, err)
	require.NotNil(t, img)
	require.Equal(t, 16, img.Width)
	require.Equal(t, 8, img.Height)
	require.Equal(t, pred.Classes, loaded.Classes)
	require.True(t, loaded.HasAdjusted())
	require.Equal(t, pred.BoxesAdj, loaded.BoxesAdj)
	require.Equal(t, []bool{false, false, true}, loaded.IsUserBox)

	_, _, err = s.LoadImageWithPredictions("no-such-folder")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreWithoutImage(t *testing.T) {
	s := setup(t)
	sub, err := s.StoreImageWithPredictions(nil, testRecord(), "static")
	require.NoError(t, err)
	require.False(t, sub.HasImage)

	img, pred, err := s.LoadImageWithPredictions(sub.Folder)
	require.NoError(t, err)
	require.Nil(t, img)
	require.Equal(t, 2, len(pred.Classes))
}

var errDiskFull = errors.New("disk full")

// Fails the n-th write (counting from 1) when the file is closed, after its content has
// already reached the underlying store
type failingStorage struct {
	storage.Storage
	failOn int
	writes int
}

type failingWriter struct {
	io.WriteCloser
}

func (w failingWriter) Close() error {
	w.WriteCloser.Close()
	return errDiskFull
}

func (f *failingStorage) WriteFile(name string) (io.WriteCloser, error) {
	f.writes++
	w, err := f.Storage.WriteFile(name)
	if err != nil || f.writes != f.failOn {
		return w, err
	}
	return failingWriter{w}, nil
}

func TestFailedStoreLeavesNothing(t *testing.T) {
	s := setup(t)
	blobs := &failingStorage{Storage: s.storage, failOn: 2}
	s.storage = blobs
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	folder := now.Format(folderTimeFmt)

	// The image write fails, so the predictions must be removed too
	_, err := s.StoreImageWithPredictions(testImage(), testRecord(), "static")
	require.ErrorIs(t, err, errDiskFull)
	_, err = storage.ReadFile(blobs, folder+"/"+PredictionsFile)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = storage.ReadFile(blobs, folder+"/"+ImageFile)
	require.ErrorIs(t, err, storage.ErrNotFound)
	subs, err := s.ListFlaggedDirectory()
	require.NoError(t, err)
	require.Empty(t, subs)

	// The next submission reuses the folder name, and must not pick up the failed image
	blobs.failOn = 0
	sub, err := s.StoreImageWithPredictions(nil, testRecord(), "static")
	require.NoError(t, err)
	require.Equal(t, folder, sub.Folder)
	img, pred, err := s.LoadImageWithPredictions(sub.Folder)
	require.NoError(t, err)
	require.Nil(t, img)
	require.Equal(t, 2, len(pred.Classes))
}

func TestListNewestFirst(t *testing.T) {
	s := setup(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Hour), base.Add(time.Minute), base.Add(time.Hour)}
	for _, tm := range times {
		s.now = func() time.Time { return tm }
		_, err := s.StoreImageWithPredictions(nil, testRecord(), "")
		require.NoError(t, err)
	}

	subs, err := s.ListFlaggedDirectory()
	require.NoError(t, err)
	require.Equal(t, 4, len(subs))
	folders := []string{}
	for _, sub := range subs {
		folders = append(folders, sub.Folder)
	}
	// Two submissions in the same millisecond get distinct folders
	require.Equal(t, []string{
		"2024-03-01T13-00-00.000Z-2",
		"2024-03-01T13-00-00.000Z",
		"2024-03-01T12-01-00.000Z",
		"2024-03-01T12-00-00.000Z",
	}, folders)
}

func TestInvalidRecordRejected(t *testing.T) {
	s := setup(t)
	pred := testRecord()
	pred.Scores = pred.Scores[:1]
	_, err := s.StoreImageWithPredictions(nil, pred, "")
	require.Error(t, err)
	subs, err := s.ListFlaggedDirectory()
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestStoreFeedback(t *testing.T) {
	s := setup(t)
	_, err := s.StoreFeedback("bob", "   ")
	require.ErrorIs(t, err, ErrEmptyComment)

	long := make([]byte, MaxCommentChars+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = s.StoreFeedback("bob", string(long))
	require.ErrorIs(t, err, ErrCommentTooLong)

	s.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = s.StoreFeedback("", "first")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	c, err := s.StoreFeedback(" alice ", "second")
	require.NoError(t, err)
	require.Equal(t, "alice", c.Name)

	all, err := s.ListFeedback()
	require.NoError(t, err)
	require.Equal(t, 2, len(all))
	require.Equal(t, "second", all[0].Text)
	require.Equal(t, "first", all[1].Text)
}
