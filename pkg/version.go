package pkg

import "fmt"

var (
	// Set by the linker at build time.
	DsproxyVersion         = "devel"
	GitRevision            = "devel"
	DsproxyVersionRevision = fmt.Sprintf("%s-%s", DsproxyVersion, GitRevision)
)
