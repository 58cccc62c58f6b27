package models

import "errors"

var (
	ErrLengthMismatch  = errors.New("series: timestamps and values differ in length")
	ErrUnorderedSeries = errors.New("series: timestamps must be strictly increasing")
	ErrReportNotFound  = errors.New("report not found")
)
