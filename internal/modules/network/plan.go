package network

import (
	"strings"
)

// Step is one remediation command. Alternatives are tried in order until one
// succeeds, covering tools that differ between distributions.
type Step [][]string

// Plan holds the platform-specific commands the module runs.
type Plan struct {
	// Gateway prints the default route.
	Gateway []string
	// ParseGateway extracts the gateway address and interface from Gateway's output.
	ParseGateway func(out string) (gateway, iface string)
	// Ping probes a single address.
	Ping func(addr string) []string

	FlushDNS       []Step
	RenewLease     func(iface string) []Step
	RestartNetwork func(iface string) []Step
}

// PlanFor returns the command plan for goos.
func PlanFor(goos string) Plan {
	switch goos {
	case "windows":
		return windowsPlan()
	case "darwin":
		return darwinPlan()
	default:
		return linuxPlan()
	}
}

func linuxPlan() Plan {
	return Plan{
		Gateway:      []string{"ip", "route", "show", "default"},
		ParseGateway: parseIPRoute,
		Ping: func(addr string) []string {
			return []string{"ping", "-c", "2", "-W", "2", addr}
		},
		FlushDNS: []Step{{
			{"resolvectl", "flush-caches"},
			{"systemd-resolve", "--flush-caches"},
			{"systemctl", "restart", "nscd"},
		}},
		RenewLease: func(string) []Step {
			return []Step{
				{{"dhclient", "-r"}},
				{{"dhclient"}},
			}
		},
		RestartNetwork: func(string) []Step {
			return []Step{{
				{"systemctl", "restart", "NetworkManager"},
				{"systemctl", "restart", "networking"},
			}}
		},
	}
}

func darwinPlan() Plan {
	return Plan{
		Gateway:      []string{"route", "-n", "get", "default"},
		ParseGateway: parseRouteGet,
		Ping: func(addr string) []string {
			return []string{"ping", "-c", "2", "-t", "2", addr}
		},
		FlushDNS: []Step{
			{{"dscacheutil", "-flushcache"}},
			{{"killall", "-HUP", "mDNSResponder"}},
		},
		RenewLease: func(iface string) []Step {
			if iface == "" {
				return nil
			}
			return []Step{{{"ipconfig", "set", iface, "DHCP"}}}
		},
		RestartNetwork: func(iface string) []Step {
			if iface == "" {
				return nil
			}
			return []Step{
				{{"ifconfig", iface, "down"}},
				{{"ifconfig", iface, "up"}},
			}
		},
	}
}

func windowsPlan() Plan {
	return Plan{
		Gateway:      []string{"route", "print", "0.0.0.0"},
		ParseGateway: parseRoutePrint,
		Ping: func(addr string) []string {
			return []string{"ping", "-n", "2", "-w", "2000", addr}
		},
		FlushDNS: []Step{{{"ipconfig", "/flushdns"}}},
		RenewLease: func(string) []Step {
			return []Step{
				{{"ipconfig", "/release"}},
				{{"ipconfig", "/renew"}},
			}
		},
		// Interface names are not available from the route table.
		RestartNetwork: func(string) []Step { return nil },
	}
}

// parseIPRoute reads "default via 192.168.1.1 dev eth0 proto dhcp ...".
func parseIPRoute(out string) (gateway, iface string) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "default" {
			continue
		}
		for i := 0; i+1 < len(fields); i++ {
			switch fields[i] {
			case "via":
				gateway = fields[i+1]
			case "dev":
				iface = fields[i+1]
			}
		}
		if gateway != "" {
			return gateway, iface
		}
	}
	return gateway, iface
}

// parseRouteGet reads the "gateway:" and "interface:" lines of route(8).
func parseRouteGet(out string) (gateway, iface string) {
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "gateway":
			gateway = strings.TrimSpace(value)
		case "interface":
			iface = strings.TrimSpace(value)
		}
	}
	return gateway, iface
}

// parseRoutePrint reads the active route row "0.0.0.0 0.0.0.0 <gateway> <interface> <metric>".
func parseRoutePrint(out string) (gateway, iface string) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 4 && fields[0] == "0.0.0.0" && fields[1] == "0.0.0.0" {
			return fields[2], fields[3]
		}
	}
	return "", ""
}
