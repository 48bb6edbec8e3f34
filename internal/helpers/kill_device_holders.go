// Package helpers holds small process and layout utilities shared by the
// device backends and the UI.
package helpers

import (
	"context"
	"errors"
	"maps"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pion/logging"
)

// HolderGrace is the wait between SIGTERM and SIGKILL.
var HolderGrace = 400 * time.Millisecond

// lookupTimeout bounds each lsof / fuser call.
const lookupTimeout = 2 * time.Second

// KillDeviceHolders terminates every other process that has devicePath
// open, so a stale recorder or preview does not keep the camera busy.
// Holders are found with lsof, falling back to fuser. It returns the PIDs
// it signalled.
func KillDeviceHolders(devicePath string, log logging.LeveledLogger) []int {
	pids := DeviceHolders(devicePath)
	if len(pids) == 0 {
		return nil
	}
	log.Warnf("killing holders of %s: %v", devicePath, pids)

	escalate := func() {
		runCmd("sudo", "fuser", "-k", devicePath)
	}

	for _, pid := range pids {
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			if isPermissionError(err) {
				escalate()
				break
			}
			log.Debugf("SIGTERM %d: %v", pid, err)
		}
	}

	time.Sleep(HolderGrace)

	for _, pid := range pids {
		if !isPIDAlive(pid) {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
			if isPermissionError(err) {
				escalate()
				continue
			}
			log.Debugf("SIGKILL %d: %v", pid, err)
		}
	}
	return pids
}

// DeviceHolders lists the PIDs, other than our own, holding devicePath.
func DeviceHolders(devicePath string) []int {
	pids := parsePIDs(runCmd("lsof", "-t", devicePath), lsofLine)
	if len(pids) == 0 {
		pids = parsePIDs(runCmd("fuser", "-v", devicePath), fuserField)
	}
	delete(pids, os.Getpid())
	return slices.Sorted(maps.Keys(pids))
}

var (
	lsofLine   = regexp.MustCompile(`(?m)^\s*(\d+)\s*$`)
	fuserField = regexp.MustCompile(`\b(\d+)\b`)
)

func parsePIDs(out string, re *regexp.Regexp) map[int]struct{} {
	pids := make(map[int]struct{})
	for _, m := range re.FindAllStringSubmatch(out, -1) {
		if pid, err := strconv.Atoi(m[1]); err == nil && pid > 0 {
			pids[pid] = struct{}{}
		}
	}
	return pids
}

func isPIDAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// runCmd returns the trimmed stdout of a command, or "" on any failure.
func runCmd(name string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func isPermissionError(err error) bool {
	return errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES)
}
