package main

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/site-outages-etl/internal/adapter/api"
	"github.com/couchcryptid/site-outages-etl/internal/observability"
)

func (a *app) siteInfoCmd(siteName *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "site-info",
		Short: "Print a site's info as returned by the outages API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("%w: --output must be json or yaml, got %q", errConfig, output)
			}

			client := api.NewClient(api.ConfigFrom(a.cfg), a.logger, observability.NewMetrics(prometheus.NewRegistry()))
			info, err := client.SiteInfo(cmd.Context(), a.site(*siteName))
			if err != nil {
				return err
			}
			return printInfo(cmd, info, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func printInfo(cmd *cobra.Command, info map[string]any, output string) error {
	var (
		data []byte
		err  error
	)
	if output == "yaml" {
		data, err = yaml.Marshal(info)
	} else {
		data, err = json.MarshalIndent(info, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode site info: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
