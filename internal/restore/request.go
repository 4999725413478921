package restore

import (
	"errors"
	"strings"
)

// Request identifies one index restore. It is never modified after creation.
type Request struct {
	Cluster    string
	Repository string
	Snapshot   string
	Index      string
}

// Validate checks that every field is set.
func (r Request) Validate() error {
	var missing []string
	if r.Cluster == "" {
		missing = append(missing, "cluster")
	}
	if r.Repository == "" {
		missing = append(missing, "repository")
	}
	if r.Snapshot == "" {
		missing = append(missing, "snapshot")
	}
	if r.Index == "" {
		missing = append(missing, "index")
	}
	if len(missing) > 0 {
		return errors.New("missing " + strings.Join(missing, ", "))
	}
	return nil
}
