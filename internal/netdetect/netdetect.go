// Package netdetect maps configured addresses to local network interfaces.
package netdetect

import (
	"fmt"
	"net"
)

// InterfaceInfo describes a local network interface.
type InterfaceInfo struct {
	Name       string
	Addresses  []string
	IsUp       bool
	IsLoopback bool
}

// ListInterfaces returns the local interfaces and their IP addresses.
func ListInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list network interfaces: %w", err)
	}

	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{
			Name:       iface.Name,
			IsUp:       iface.Flags&net.FlagUp != 0,
			IsLoopback: iface.Flags&net.FlagLoopback != 0,
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip := addrIP(addr); ip != nil {
				info.Addresses = append(info.Addresses, ip.String())
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPNet:
		return a.IP
	case *net.IPAddr:
		return a.IP
	}
	return nil
}

// InterfaceForListen returns the interface carrying listenIP. An
// unspecified address (0.0.0.0 or ::) listens on every interface, so ok is
// false with no error.
func InterfaceForListen(listenIP string) (info InterfaceInfo, ok bool, err error) {
	ip := net.ParseIP(listenIP)
	if ip == nil {
		return InterfaceInfo{}, false, fmt.Errorf("invalid IP address: %s", listenIP)
	}
	if ip.IsUnspecified() {
		return InterfaceInfo{}, false, nil
	}

	interfaces, err := ListInterfaces()
	if err != nil {
		return InterfaceInfo{}, false, err
	}
	for _, iface := range interfaces {
		for _, addr := range iface.Addresses {
			if net.ParseIP(addr).Equal(ip) {
				return iface, true, nil
			}
		}
	}
	return InterfaceInfo{}, false, fmt.Errorf("no local interface has address %s", listenIP)
}

// AddressString returns up to three addresses of info, comma separated.
func AddressString(info InterfaceInfo) string {
	if len(info.Addresses) == 0 {
		return "no addresses"
	}
	result := info.Addresses[0]
	for i := 1; i < len(info.Addresses) && i < 3; i++ {
		result += ", " + info.Addresses[i]
	}
	if len(info.Addresses) > 3 {
		result += fmt.Sprintf(" (+%d more)", len(info.Addresses)-3)
	}
	return result
}
