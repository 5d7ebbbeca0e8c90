package compare

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// WriteTable renders the comparison document as a human-readable table.
func WriteTable(writer io.Writer, document Document) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader([]string{"Level", "Configuration", "Metric", "Before", "After", "Change", "Direction"})
	table.SetAutoMergeCells(true)
	table.SetRowLine(true)

	for _, levelComparison := range document.Levels {
		level := levelComparison.Level.String()

		if levelComparison.MissingIn != "" {
			table.Append([]string{level, "-", "-", "-", "-", "-",
				fmt.Sprintf("missing in %s run", levelComparison.MissingIn)})
			continue
		}

		for _, configComparison := range levelComparison.Configs {
			key := configComparison.Config.Key()

			if configComparison.MissingIn != "" {
				table.Append([]string{level, key, "-", "-", "-", "-",
					fmt.Sprintf("missing in %s run", configComparison.MissingIn)})
				continue
			}

			for _, delta := range configComparison.Deltas {
				table.Append([]string{
					level,
					key,
					delta.Metric,
					fmt.Sprintf("%.3f", delta.Before),
					fmt.Sprintf("%.3f", delta.After),
					fmt.Sprintf("%+.1f%%", delta.PctChange*100),
					string(delta.Direction),
				})
			}
		}
	}

	table.Render()
}
