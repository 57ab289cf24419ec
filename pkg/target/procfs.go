package target

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"regexp"

	"golang.org/x/sys/unix"
)

// readProcComm read /proc/pid/comm, falling back to the name in /proc/pid/stat
func readProcComm(pid int) (string, error) {
	comm, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err == nil {
		comm = bytes.TrimSuffix(comm, []byte("\n"))
	}
	if len(comm) != 0 {
		return string(comm), nil
	}

	stat, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", fmt.Errorf("could not read proc stat: %v", err)
	}
	return parseStatComm(pid, stat)
}

// parseStatComm the second field of /proc/pid/stat is the name in parenthesis,
// the name itself may contain both parenthesis and spaces
func parseStatComm(pid int, stat []byte) (string, error) {
	expr := fmt.Sprintf(`^%d\s*\((.*)\)`, pid)
	rexp, err := regexp.Compile(expr)
	if err != nil {
		return "", fmt.Errorf("regexp compile error: %v", err)
	}
	match := rexp.FindSubmatch(stat)
	if match == nil {
		return "", fmt.Errorf("no match found using regexp '%s' in /proc/%d/stat", expr, pid)
	}
	return string(match[1]), nil
}

// readProcExe resolve the binary process pid runs
func readProcExe(pid int) (string, error) {
	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", fmt.Errorf("resolve executable of process %d: %v", pid, err)
	}
	return exe, nil
}

// checkPid check whether pid is a live process.
//
// On Unix systems, os.FindProcess always succeeds and returns a Process for
// the given pid, regardless of whether the process exists.
func checkPid(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
