package wifi

import (
	"net"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const nmcli = "nmcli"

// splitTerse splits one line of `nmcli -t` output. nmcli escapes ':' and
// '\' inside values with a backslash.
func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder

	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// HardwareAddr returns the MAC address of the named interface.
func HardwareAddr(iface string) (string, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to look up interface %s", iface)
	}
	if len(ifi.HardwareAddr) == 0 {
		return "", pkgerrors.Errorf("interface %s has no hardware address", iface)
	}
	return ifi.HardwareAddr.String(), nil
}
