package ws

import "strings"

// hostport splits host into hostname and dial address, appending
// defaultPort (like ":80") when host has no port.
func hostport(host string, defaultPort string) (hostname, addr string) {
	var (
		colon   = strings.LastIndexByte(host, ':')
		bracket = strings.IndexByte(host, ']')
	)
	if colon > bracket {
		return host[:colon], host
	}
	return host, host + defaultPort
}

func nonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
