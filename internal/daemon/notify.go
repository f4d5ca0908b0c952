package daemon

import (
	"log/slog"
	"net"
	"os"
	"strings"
)

// SdNotify sends one datagram with the given assignments (READY=1,
// STATUS=...) to the systemd notification socket. Outside systemd it does
// nothing. Failures are logged and otherwise ignored.
func SdNotify(states ...string) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" || len(states) == 0 {
		return
	}
	addr := &net.UnixAddr{Name: socket, Net: "unixgram"}
	if strings.HasPrefix(socket, "@") {
		// Abstract namespace.
		addr.Name = "\x00" + socket[1:]
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		slog.Warn("sd-notify dial failed", "socket", socket, "error", err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(strings.Join(states, "\n"))); err != nil {
		slog.Debug("sd-notify write failed", "error", err)
	}
}
