package common

import (
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintHeader prints a title framed by separator lines
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", width))
}

func PrintFooter(message string, width int) {
	fmt.Println(strings.Repeat("-", width))
	fmt.Println(message + "\n")
}

// BoxPrefix returns the tree prefix for a list item
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└─"
	}
	return "├─"
}

// BoxDetailPrefix returns the prefix for detail lines under a list item
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "  "
	}
	return "│ "
}

// ShortRef abbreviates long transaction hashes and payout ids for tables
func ShortRef(ref string) string {
	switch {
	case ref == "":
		return "none"
	case len(ref) > 18:
		return ref[:10] + "..." + ref[len(ref)-6:]
	default:
		return ref
	}
}

// FormatDetail renders a detail map as sorted key=value pairs
func FormatDetail(detail map[string]string) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + detail[k]
	}
	return strings.Join(parts, " ")
}
