package trial

import (
	"bytes"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// killTree terminates pid together with every process descended from it.
// Each process found is stopped before its children are looked up, so the
// tree cannot grow while it is being collected. Descendants are read from
// /proc; where it is unavailable only pid is killed.
func killTree(pid int) {
	_ = unix.Kill(pid, unix.SIGSTOP)
	tree := map[int]bool{pid: true}
	victims := []int{pid}
	for {
		found := childrenOf(tree)
		if len(found) == 0 {
			break
		}
		for _, c := range found {
			tree[c] = true
			victims = append(victims, c)
			_ = unix.Kill(c, unix.SIGSTOP)
		}
	}
	for _, p := range victims {
		_ = unix.Kill(p, unix.SIGKILL)
	}
}

// childrenOf returns the processes whose parent is in parents and which are
// not in parents themselves.
func childrenOf(parents map[int]bool) []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	var out []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || parents[pid] {
			continue
		}
		if ppid, ok := parentOf(pid); ok && parents[ppid] {
			out = append(out, pid)
		}
	}
	return out
}

// parentOf reads the parent pid from /proc/<pid>/stat.
func parentOf(pid int) (int, bool) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, false
	}
	// The command name may contain spaces and parentheses.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 {
		return 0, false
	}
	fields := bytes.Fields(data[i+1:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(string(fields[1]))
	return ppid, err == nil
}
