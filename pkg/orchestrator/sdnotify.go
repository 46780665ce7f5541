package orchestrator

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// notifySupervisor sends one sd_notify state datagram ("READY=1",
// "WATCHDOG=1", "STOPPING=1") to the socket named by NOTIFY_SOCKET.
// Outside a supervisor no socket is set and the call reports (false, nil)
// without doing anything, so the daemon runs identically under systemd
// and on a laptop.
func notifySupervisor(state string) (bool, error) {
	name := os.Getenv("NOTIFY_SOCKET")
	if name == "" {
		return false, nil
	}
	// Abstract sockets arrive with a leading "@" standing in for the
	// NUL byte of the real address.
	if strings.HasPrefix(name, "@") {
		name = "\x00" + name[1:]
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: name, Net: "unixgram"})
	if err != nil {
		return false, fmt.Errorf("dialing notify socket: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(state)); err != nil {
		return false, fmt.Errorf("sending %q: %w", state, err)
	}
	return true, nil
}
