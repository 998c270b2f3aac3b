// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"net"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

// DetectedHostAddress returns the first non-loopback IPv4 address, then IPv6,
// then "localhost".
func DetectedHostAddress() string {
	netInterfaces, err := net.Interfaces()
	if err != nil {
		logger.Info().Msgf("failed to detect net interfaces: %v", err)
		return "localhost"
	}

	if v4Address := selectAddress(netInterfaces, true); v4Address != "" {
		return v4Address
	}

	if v6Address := selectAddress(netInterfaces, false); v6Address != "" {
		return v6Address
	}

	return "localhost"
}

func selectAddress(netInterfaces []net.Interface, ipv4 bool) string {
	for _, netInterface := range netInterfaces {
		if (netInterface.Flags & net.FlagUp) == 0 {
			continue
		}
		addrs, err := netInterface.Addrs()
		if err != nil {
			logger.Info().Msgf("get interface addresses: %v", err)
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if ipv4 {
				if ipNet.IP.To4() != nil {
					return ipNet.IP.String()
				}
				continue
			}
			// link-local IPv6 needs a zone and cannot be bound to
			if ipNet.IP.To4() == nil && ipNet.IP.To16() != nil && !ipNet.IP.IsLinkLocalUnicast() {
				return ipNet.IP.String()
			}
		}
	}
	return ""
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}
