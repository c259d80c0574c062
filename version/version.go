// Package version holds build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/astrofix/astrofix/version.GitRelease=v0.1.0"
var (
	// GitRelease is the release tag or branch.
	GitRelease = "dev"
	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit date.
	GitCommitDate = "unknown"
)

// GoInfo describes the Go toolchain and target platform.
var GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
