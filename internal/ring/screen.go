package ring

import (
	"fmt"
	"net"
)

func screenAddr(basePort, screenID uint16) string {
	return fmt.Sprintf("127.0.0.1:%d", basePort+screenID)
}

func dialScreen(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, dialScreenTimeout)
}
