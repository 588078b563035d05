package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/goflagship-sdk/internal/flags"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintFlagSet outputs a resolved flag set in the specified format
func PrintFlagSet(set flags.FlagSet, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(set)
	case FormatYAML:
		return printYAML(set)
	case FormatTable:
		return printTable(set)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(set flags.FlagSet) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]flags.FlagSet{"flags": set})
}

func printYAML(set flags.FlagSet) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(set)
}

func printTable(set flags.FlagSet) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Key", "Enabled", "Version", "Config")

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := set[key]

		enabled := "false"
		if rec.IsEnabled {
			enabled = "true"
		}

		configKey := "-"
		if rec.Config != nil {
			configKey = rec.Config.Key
		}

		table.Append(
			rec.Key,
			enabled,
			fmt.Sprintf("%d", rec.Version),
			configKey,
		)
	}

	return table.Render()
}
