// ImageFilters describe user-provided filters to narrow the image list.
package dto

import "time"

const (
	StatusAll      = ""
	StatusAnalyzed = "analyzed"
	StatusPending  = "pending"
)

type ImageFilters struct {
	Status     string // "", "analyzed" or "pending"
	Class      string // any prediction of this class
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
