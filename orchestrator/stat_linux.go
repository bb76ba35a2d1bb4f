//go:build linux

package orchestrator

import "syscall"

// statT is the platform Stat_t type exposed through fs.FileInfo.Sys(), used
// to recover live owner/group for [liveResolver.Resolve].
type statT = syscall.Stat_t
