package peer

import (
	"net"
	"net/netip"
	"strings"

	pion "github.com/pion/webrtc/v4"
	"github.com/samber/lo"

	"github.com/BioHazard786/callrelay/internal/config"
)

// Cloudflare WARP, Tailscale and carrier-grade NAT hand out addresses here.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

func tunnelName(name string) bool {
	name = strings.ToLower(name)
	return lo.SomeBy(tunnelMarkers, func(m string) bool {
		return strings.Contains(name, m)
	})
}

func inCGNAT(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	a, ok := netip.AddrFromSlice(ip)
	return ok && cgnat.Contains(a.Unmap())
}

// behindRestrictiveNAT guesses whether direct connectivity is unlikely: an
// up interface that looks like a VPN tunnel or holds a CGNAT address.
func behindRestrictiveNAT() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if tunnelName(iface.Name) {
			return true
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if lo.SomeBy(addrs, inCGNAT) {
			return true
		}
	}
	return false
}

// transportPolicy forces TURN relaying when asked to, or when the host looks
// tunneled. Without a TURN server there is nothing to force.
func transportPolicy(cfg *config.ClientConfig, restricted func() bool) pion.ICETransportPolicy {
	if cfg.GetTURNServers() == nil {
		return pion.ICETransportPolicyAll
	}
	if cfg.ForceRelay || restricted() {
		return pion.ICETransportPolicyRelay
	}
	return pion.ICETransportPolicyAll
}
