package utils

import (
	"net"

	"github.com/pkg/errors"
)

// GetOutboundIP returns the local address the host routes outbound traffic from.
// No packet is sent.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.Wrap(err, "dial udp")
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
