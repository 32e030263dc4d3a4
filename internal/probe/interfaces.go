package probe

import (
	"fmt"
	"net"
	"sort"

	"sosinternet/internal/models"
)

// SystemInterfaces lists non-loopback interfaces and whether each is operationally up.
func SystemInterfaces() ([]models.InterfaceState, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]models.InterfaceState, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		out = append(out, models.InterfaceState{
			Name:  iface.Name,
			Up:    iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0,
			Flags: iface.Flags.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
