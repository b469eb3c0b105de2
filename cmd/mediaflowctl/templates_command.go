package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cordum/mediaflow/core/workflow"
)

func newTemplatesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the built-in workflow templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := workflow.DefaultCatalog()
			if err != nil {
				return err
			}
			list := catalog.List()
			if asJSON {
				return writeJSON(cmd, list)
			}
			rows := make([][]string, 0, len(list))
			for _, tpl := range list {
				rows = append(rows, []string{tpl.ID, tpl.Category, strconv.Itoa(len(tpl.Definition.Steps)), tpl.Description})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Category", "Steps", "Description"}, rows, 2))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print templates as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id|name>",
		Short: "Print a template's definition as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := workflow.DefaultCatalog()
			if err != nil {
				return err
			}
			tpl, err := catalog.Get(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(tpl.Definition); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}
