// ABOUTME: Small helpers shared by the transport tests
// ABOUTME: Address parsing for bind-conflict checks

package reversews

import (
	"net"
	"strconv"
)

func splitPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	return host, port, err
}
