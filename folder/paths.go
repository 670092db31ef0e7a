package folder

import (
	"path/filepath"
	"runtime"
	"strings"
)

const (
	summarySuffix     = ".summary"
	tempSuffix        = ".ns_tmp"
	lockSuffix        = ".lock"
	windowsSummaryExt = ".snm"
	windowsTempExt    = ".tmp"
)

var posixNames = runtime.GOOS != "windows"

// SummaryPath returns the summary file stored next to the mailbox file
func SummaryPath(path string) string {
	return summaryPath(path, posixNames)
}

func summaryPath(path string, posix bool) string {
	dir, name := filepath.Split(path)
	if posix {
		return filepath.Join(dir, "."+name+summarySuffix)
	}
	return filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+windowsSummaryExt)
}

// tempPath is the file used to rebuild the mailbox during a compaction
func tempPath(path string) string {
	return tempPathFor(path, posixNames)
}

func tempPathFor(path string, posix bool) string {
	dir, name := filepath.Split(path)
	if posix {
		return filepath.Join(dir, "."+name+tempSuffix)
	}
	return filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+windowsTempExt)
}

func lockPath(path string) string {
	return path + lockSuffix
}

// IsAuxiliaryFile returns true for the files a folder keeps next to its mailbox file
func IsAuxiliaryFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, suffix := range []string{lockSuffix, windowsSummaryExt, windowsTempExt} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
