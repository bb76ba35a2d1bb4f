//go:build linux

package checker

import "syscall"

// statT is the platform Stat_t type exposed through fs.FileInfo.Sys() on
// Linux, carrying the Uid/Gid/Rdev fields the permission and device-node
// checks need. This tool only ever targets Linux hosts (pacman and dpkg
// don't exist elsewhere), so no other platform variant is provided.
type statT = syscall.Stat_t
