package saga

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	jobNamespace     = uuid.MustParse("6f1c8a52-3d4e-4c55-9a0b-2f1e7d9c4a10")
	jobTypeNamespace = uuid.MustParse("0b7e2d41-95c3-4f8e-8e62-7a4d3c1b5f22")
	attemptNamespace = uuid.MustParse("d2a94f6e-1c38-4b7a-b0e5-94c2e8f6a733")
)

const DefaultJobType = "default"

// JobID returns the correlation id of the job saga for a GroupId/Index pair.
func JobID(groupID string, index int) string {
	return uuid.NewSHA1(jobNamespace, []byte(fmt.Sprintf("%s/%d", groupID, index))).String()
}

// JobTypeID returns the correlation id of the admission controller of a job type.
func JobTypeID(jobType string) string {
	return uuid.NewSHA1(jobTypeNamespace, []byte(jobType)).String()
}

// AttemptID returns the correlation id of the attempt saga that owns a Foo.
func AttemptID(fooID string) string {
	return uuid.NewSHA1(attemptNamespace, []byte(fooID)).String()
}

// ResolveJobType picks the admission category of a request: the explicit
// JobType if set, otherwise the lower-cased extension of the source path.
func ResolveJobType(explicit, path string) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return strings.ToLower(t)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return DefaultJobType
	}
	return ext
}
