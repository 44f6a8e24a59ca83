package nn

import "errors"

var ErrUnknownClass = errors.New("unknown class")
var ErrUnknownTargetType = errors.New("unknown target type")
var ErrInstanceIndex = errors.New("instance index out of range")
var ErrInvalidGeometry = errors.New("invalid geometry")
var ErrInvalidPrediction = errors.New("invalid prediction")
var ErrSerialization = errors.New("prediction is not JSON safe")
