package utils

import (
	"fmt"
	"net"
)

// MacAddress holds a MAC in the low 48 bits, first octet most significant.
type MacAddress uint64

func (m MacAddress) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr{
		byte(m >> 40), byte(m >> 32), byte(m >> 24),
		byte(m >> 16), byte(m >> 8), byte(m),
	}
}

func (m MacAddress) String() string {
	return m.HardwareAddr().String()
}

func (m MacAddress) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%s\"", m.String())), nil
}
