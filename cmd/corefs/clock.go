package main

import "time"

// wallClock supplies the monotonically non-decreasing millisecond tick
// the filesystem treats as an external collaborator: real firmware
// wires in its own uptime timer, the demo CLI wires in wall-clock time
// since it already runs under a host OS.
func wallClock() uint32 {
	return uint32(time.Now().UnixNano() / int64(time.Millisecond))
}
