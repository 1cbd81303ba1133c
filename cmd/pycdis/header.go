package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/internal/cursor"
	"github.com/deepnoodle-ai/pycode/op"
	"github.com/deepnoodle-ai/pycode/pyc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type headerInfo struct {
	Path       string `json:"path"`
	Version    string `json:"version"`
	Magic      string `json:"magic"`
	Mode       string `json:"mode"`
	Flags      uint32 `json:"flags"`
	Timestamp  string `json:"timestamp,omitempty"`
	SourceSize uint32 `json:"source_size,omitempty"`
	Hash       string `json:"hash,omitempty"`
}

func newHeaderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header FILE...",
		Short: "Print the header of compiled Python files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			var infos []headerInfo
			for _, path := range args {
				info, err := readHeaderInfo(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				infos = append(infos, info)
			}
			switch strings.ToLower(format) {
			case "json":
				out, err := getOutputJSON(infos)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			case "", "text":
				for _, info := range infos {
					writeHeaderText(cmd.OutOrStdout(), info)
				}
				return nil
			default:
				return fmt.Errorf("unknown output format: %s", format)
			}
		},
	}
	cmd.Flags().StringP("output", "o", "text", "output format (json, text)")
	return cmd
}

func readHeaderInfo(path string) (headerInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return headerInfo{}, err
	}
	if len(data) < pyc.HeaderSize {
		return headerInfo{}, errz.Newf(errz.TruncatedInput, 0,
			"container header needs %d bytes, have %d", pyc.HeaderSize, len(data))
	}
	var v *op.Version
	if name := viper.GetString("python-version"); name != "" {
		v, err = op.Lookup(name)
	} else {
		v, err = pyc.DetectVersion(data)
	}
	if err != nil {
		return headerInfo{}, err
	}
	h, err := pyc.ReadHeader(cursor.New(data), v.Magic())
	if err != nil {
		return headerInfo{}, err
	}
	info := headerInfo{
		Path:    path,
		Version: v.Name(),
		Magic:   hex.EncodeToString(h.Magic[:]),
		Mode:    h.Mode().String(),
		Flags:   h.Flags,
	}
	if mtime, ok := h.Timestamp(); ok {
		info.Timestamp = mtime.Format(time.RFC3339)
	}
	if size, ok := h.SourceSize(); ok {
		info.SourceSize = size
	}
	if hash, ok := h.Hash(); ok {
		info.Hash = hex.EncodeToString(hash[:])
	}
	return info, nil
}

func writeHeaderText(w io.Writer, info headerInfo) {
	fmt.Fprintf(w, "%s\n", bold(info.Path))
	fmt.Fprintf(w, "  version: %s\n", info.Version)
	fmt.Fprintf(w, "  magic:   %s\n", info.Magic)
	fmt.Fprintf(w, "  mode:    %s\n", info.Mode)
	if info.Hash != "" {
		fmt.Fprintf(w, "  hash:    %s\n", info.Hash)
		return
	}
	fmt.Fprintf(w, "  mtime:   %s\n", info.Timestamp)
	fmt.Fprintf(w, "  size:    %d\n", info.SourceSize)
}
