package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullVersion(t *testing.T) {
	origVersion, origMeta, origCommit := Version, BuildMeta, GitCommit
	t.Cleanup(func() { Version, BuildMeta, GitCommit = origVersion, origMeta, origCommit })

	Version = "v1.2.3"
	BuildMeta, GitCommit = "", ""
	assert.Equal(t, "v1.2.3", FullVersion())

	BuildMeta = "rc1"
	assert.Equal(t, "v1.2.3-rc1", FullVersion())

	GitCommit = "abcdef"
	assert.Equal(t, "v1.2.3-rc1+abcdef", FullVersion())
	assert.Equal(t, "sketchkit v1.2.3-rc1+abcdef ("+runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH+")", String())
}
