package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print the workflows exposed by a bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("--output must be json or yaml, got %q", output)
			}
			bc := newBridgeClient(a, a.cfg.Logger())
			disc, err := bc.Discover(cmd.Context())
			if err != nil {
				return err
			}
			return writeDocument(cmd.OutOrStdout(), output, disc)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

// writeDocument prints v as indented JSON or as YAML. YAML goes through
// the JSON form so field names match the wire format.
func writeDocument(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
