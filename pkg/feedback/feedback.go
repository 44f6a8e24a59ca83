// Package feedback stores images that users flag, together with their corrected predictions.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/anonymiser/pkg/storage"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

const (
	PredictionsFile = "predictions.json"
	ImageFile       = "image.jpg"
	MaxCommentChars = 500
	folderTimeFmt   = "2006-01-02T15-04-05.000Z"
)

var ErrEmptyComment = errors.New("feedback text is empty")
var ErrCommentTooLong = fmt.Errorf("feedback text is longer than %v characters", MaxCommentChars)

// Store writes flagged images to a blob store, and indexes them in a database
type Store struct {
	log     logs.Log
	db      *gorm.DB
	storage storage.Storage
	lock    sync.Mutex // Guards folder name allocation
	now     func() time.Time
}

// Open the feedback index database, and bind it to the given blob store
func Open(log logs.Log, dbc dbh.DBConfig, blobs storage.Storage) (*Store, error) {
	db, err := dbh.OpenDB(log, dbc, Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open feedback database: %w", err)
	}
	return NewStore(log, db, blobs), nil
}

// NewStore wraps an already opened (and migrated) database
func NewStore(log logs.Log, db *gorm.DB, blobs storage.Storage) *Store {
	return &Store{
		log:     log,
		db:      db,
		storage: blobs,
		now:     time.Now,
	}
}

func (s *Store) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// StoreImageWithPredictions writes pred, and optionally img, into a new timestamped folder.
// If img is nil, then only the predictions are stored.
// Returns the index record of the new folder.
func (s *Store) StoreImageWithPredictions(img *cimg.Image, pred *nn.Prediction, detector string) (*Submission, error) {
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	predJSON, err := json.Marshal(pred)
	if err != nil {
		return nil, err
	}
	var imgJPG []byte
	if img != nil {
		if imgJPG, err = imageio.EncodeJPEG(img, imageio.DefaultJPEGQuality); err != nil {
			return nil, err
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now()
	sub := &Submission{
		Created:    dbh.MakeIntTime(now),
		Detector:   detector,
		HasImage:   img != nil,
		NumObjects: len(pred.Classes),
	}
	if pred.Adjusted != nil {
		sub.NumObjects = len(pred.ClassesAdj)
	}
	if sub.Folder, err = s.allocFolder(now); err != nil {
		return nil, err
	}

	// On failure, remove whatever was written, so that a later submission which reuses the
	// folder name cannot inherit our image.
	written := []string{}
	rollback := func() {
		for _, name := range written {
			if err := s.storage.DeleteFile(name); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.log.Warnf("Failed to remove %v after failed submission: %v", name, err)
			}
		}
	}
	write := func(name string, content []byte) error {
		name = sub.Folder + "/" + name
		written = append(written, name)
		return storage.WriteFile(s.storage, name, content)
	}

	if err := write(PredictionsFile, predJSON); err != nil {
		rollback()
		return nil, err
	}
	if imgJPG != nil {
		if err := write(ImageFile, imgJPG); err != nil {
			rollback()
			return nil, err
		}
	}
	if err := s.db.Create(sub).Error; err != nil {
		rollback()
		return nil, err
	}
	s.log.Infof("Stored flagged image %v (image: %v, objects: %v)", sub.Folder, sub.HasImage, sub.NumObjects)
	return sub, nil
}

// Returns a folder name that is not yet in use. Timestamps are formatted without colons,
// so that the names are valid on every filesystem.
func (s *Store) allocFolder(now time.Time) (string, error) {
	base := now.UTC().Format(folderTimeFmt)
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = base + "-" + strconv.Itoa(i)
		}
		var count int64
		if err := s.db.Model(&Submission{}).Where("folder = ?", name).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return name, nil
		}
	}
}

// LoadImageWithPredictions reads back a folder written by StoreImageWithPredictions.
// The returned image is nil if the user chose not to share it.
func (s *Store) LoadImageWithPredictions(folder string) (*cimg.Image, *nn.Prediction, error) {
	folder = strings.Trim(folder, "/")
	raw, err := storage.ReadFile(s.storage, folder+"/"+PredictionsFile)
	if err != nil {
		return nil, nil, err
	}
	pred := &nn.Prediction{}
	if err := json.Unmarshal(raw, pred); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", nn.ErrSerialization, err)
	}
	pred.Normalize()

	imgJPG, err := storage.ReadFile(s.storage, folder+"/"+ImageFile)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, pred, nil
	} else if err != nil {
		return nil, nil, err
	}
	img, err := imageio.Decode(imgJPG)
	if err != nil {
		return nil, nil, err
	}
	return img, pred, nil
}

// ListFlaggedDirectory returns all submissions, newest first
func (s *Store) ListFlaggedDirectory() ([]Submission, error) {
	subs := []Submission{}
	if err := s.db.Order("created DESC, id DESC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// StoreFeedback saves free-form text feedback. name may be empty.
func (s *Store) StoreFeedback(name, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > MaxCommentChars {
		return nil, ErrCommentTooLong
	}
	c := &Comment{
		Created: dbh.MakeIntTime(s.now()),
		Name:    strings.TrimSpace(name),
		Text:    text,
	}
	if err := s.db.Create(c).Error; err != nil {
		return nil, err
	}
	s.log.Infof("Received feedback from '%v'", c.Name)
	return c, nil
}

// ListFeedback returns all text feedback, newest first
func (s *Store) ListFeedback() ([]Comment, error) {
	comments := []Comment{}
	if err := s.db.Order("created DESC, id DESC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
