package feedback

import "github.com/cyclopcam/dbh"

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Submission indexes one flagged image folder in the blob store
type Submission struct {
	BaseModel
	Folder     string      `json:"folder"`
	Created    dbh.IntTime `json:"created"`
	Detector   string      `json:"detector"`
	HasImage   bool        `json:"hasImage"` // False if the user opted out of sharing the image
	NumObjects int         `json:"numObjects"`
}

func (Submission) TableName() string { return "submission" }

// Comment is free-form text feedback
type Comment struct {
	BaseModel
	Created dbh.IntTime `json:"created"`
	Name    string      `json:"name"`
	Text    string      `json:"text"`
}

func (Comment) TableName() string { return "comment" }
