// Package humanize formats byte counts for log lines.
package humanize

import "fmt"

var units = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// Bytes renders n using binary (1024-based) units, e.g. Bytes(1536) ==
// "1.50 KiB". Values under 1 KiB are printed as a whole number of bytes,
// e.g. Bytes(512) == "512 B".
func Bytes(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	f := float64(n)
	unit := 0
	for f >= 1024 && unit < len(units)-1 {
		f /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", f, units[unit])
}
