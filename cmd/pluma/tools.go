package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harunnryd/pluma/pkg/llm"
)

var (
	toolsAll    bool
	toolsFormat string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool declarations offered to the model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := buildQuiet()
		if err != nil {
			return err
		}
		defer c.Close()

		decls := c.Registry().Enabled(c.Functions())
		if toolsAll {
			decls = c.Registry().Declarations()
		}
		return writeDeclarations(cmd.OutOrStdout(), decls, toolsFormat)
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsAll, "all", false, "Include tools not listed in functions")
	toolsCmd.Flags().StringVarP(&toolsFormat, "format", "f", "json", "Output format: json or yaml")
}

func writeDeclarations(w io.Writer, decls []llm.ToolDeclaration, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(decls)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(decls); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
