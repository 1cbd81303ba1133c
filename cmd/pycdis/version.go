package main

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/pycode/op"
	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version string   `json:"version"`
	Commit  string   `json:"commit"`
	Date    string   `json:"date"`
	Python  []string `json:"python"`
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{Version: version, Commit: commit, Date: date}
			for _, v := range op.Versions() {
				info.Python = append(info.Python, v.Name())
			}
			format, _ := cmd.Flags().GetString("output")
			switch strings.ToLower(format) {
			case "json":
				out, err := getOutputJSON(info)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			case "", "text":
				fmt.Fprintf(cmd.OutOrStdout(), "pycdis %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
				fmt.Fprintf(cmd.OutOrStdout(), "python versions: %s\n", strings.Join(info.Python, ", "))
			default:
				return fmt.Errorf("unknown output format: %s", format)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "text", "output format (json, text)")
	return cmd
}
