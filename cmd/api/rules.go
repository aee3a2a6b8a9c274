package main

import (
	"fmt"
	"os"

	"instafund/internal/challenge"
	"instafund/internal/settings"

	"github.com/spf13/cobra"
)

func newRulesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate a rules file and print the effective catalog as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("RULES_FILE")
			}
			catalog := challenge.DefaultCatalog()
			if file != "" {
				c, err := settings.LoadCatalogFile(file)
				if err != nil {
					return err
				}
				catalog = c
			}
			out, err := settings.MarshalCatalog(catalog)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "rules file (defaults to RULES_FILE)")
	return cmd
}
