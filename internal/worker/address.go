package worker

import (
	"fmt"
	"net"
)

// AdvertisedAddress builds the tcp://host:port address a worker registers
// under. An empty host is replaced by the outbound IP of this machine.
func AdvertisedAddress(host, listenAddr string) (addr string, resolvedHost string, err error) {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", "", fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}
	if host == "" {
		host = localIP()
	}
	return "tcp://" + net.JoinHostPort(host, port), host, nil
}

// localIP returns the IP of the interface used for outbound traffic. No
// packet is sent: connecting a UDP socket only selects a route.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
