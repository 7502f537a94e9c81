package ids

import "github.com/segmentio/ksuid"

// New returns a k-sortable unique id, used for token ids, audit batch
// correlation and archive object names.
func New() string {
	return ksuid.New().String()
}
