package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/series"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	return table
}

func count(n int64) string {
	return humanize.Comma(n)
}

// methodCounts renders per-method counts as "a=2 b=1", sorted by label.
func methodCounts(m map[string]int64) string {
	labels := lo.Keys(m)
	sort.Strings(labels)
	return strings.Join(lo.Map(labels, func(l string, _ int) string {
		return fmt.Sprintf("%s=%d", l, m[l])
	}), " ")
}

// ranges renders intervals as "[1,2) [3,4)".
func ranges(rs []series.Range) string {
	return strings.Join(lo.Map(rs, func(r series.Range, _ int) string { return r.String() }), " ")
}
