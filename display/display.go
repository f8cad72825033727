// Package display renders command output either as JSON for scripts or as
// pterm tables for operators.
package display

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// EnvOutput forces JSON output when set to "json", e.g. in cron jobs
const EnvOutput = "PRISM_OUTPUT"

// ShouldOutputJSON reports whether cmd should print JSON. An explicit --json
// flag wins over the environment.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd != nil && cmd.Flags().Lookup("json") != nil && cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}
	return os.Getenv(EnvOutput) == "json"
}

// MarshalJSON marshals with indentation
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// OutputJSON marshals and prints v
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// Table renders rows under header. Every row must have len(header) cells.
func Table(header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
}

// TableString renders like Table but returns the text
func TableString(header []string, rows [][]string) (string, error) {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// Success prints a highlighted one-line confirmation
func Success(format string, args ...interface{}) {
	pterm.Printf("%s %s\n", pterm.LightGreen("✓"), fmt.Sprintf(format, args...))
}

// Warning prints a highlighted one-line warning
func Warning(format string, args ...interface{}) {
	pterm.Printf("%s %s\n", pterm.Yellow("!"), fmt.Sprintf(format, args...))
}
