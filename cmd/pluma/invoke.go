package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/plugin"
)

var (
	invokeArgs    string
	invokeSession string
	invokeAll     bool
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <tool>",
	Short: "Invoke one tool and print its ActionResponse",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var toolArgs map[string]any
		if s := strings.TrimSpace(invokeArgs); s != "" {
			if err := json.Unmarshal([]byte(s), &toolArgs); err != nil {
				return fmt.Errorf("--args: %w", err)
			}
		}
		c, err := buildQuiet()
		if err != nil {
			return err
		}
		defer c.Close()

		name := args[0]
		var resp plugin.ActionResponse
		if !invokeAll && !c.Enabled(name) {
			resp = plugin.Fail((&errorsx.UnknownToolError{Name: name}).Error())
		} else {
			conn, _ := c.Sessions().GetOrCreate(invokeSession, "cli")
			resp = c.Dispatcher().Invoke(cmd.Context(), name, toolArgs, conn)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	invokeCmd.Flags().StringVarP(&invokeArgs, "args", "a", "", "Tool arguments as a JSON object")
	invokeCmd.Flags().StringVarP(&invokeSession, "session", "s", "", "Session id (a new one when empty)")
	invokeCmd.Flags().BoolVar(&invokeAll, "all", false, "Allow tools not listed in functions")
}
