package exporter

import (
	"fmt"
	"sort"
	"strconv"
)

// formatFloat formats a float with exactly 2 decimal places for reports
func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

// formatValue formats a float with the shortest representation that
// parses back to the same value
func formatValue(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatInt(i int) string {
	return strconv.Itoa(i)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
