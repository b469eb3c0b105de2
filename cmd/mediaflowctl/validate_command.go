package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cordum/mediaflow/core/workflow"
)

func newValidateCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate <definition.yaml|json>",
		Short: "Check a workflow definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read definition: %w", err)
			}
			_, res, err := workflow.ParseDefinition(data)
			var verr *workflow.ValidationError
			if err != nil && !errors.As(err, &verr) {
				return err
			}
			if verr != nil && len(res.Errors) == 0 {
				res = workflow.ValidationResult{Errors: verr.Errors}
			}
			if asJSON {
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
			} else {
				printValidation(cmd, res)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], workflow.ErrInvalidDefinition)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the validation result as JSON")
	return cmd
}

func printValidation(cmd *cobra.Command, res workflow.ValidationResult) {
	out := cmd.OutOrStdout()
	if len(res.Errors) == 0 {
		fmt.Fprintln(out, "Definition valid")
	}
	for _, e := range res.Errors {
		fmt.Fprintln(out, "error:", e)
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(out, "warning:", w)
	}
	for _, s := range res.Suggestions {
		fmt.Fprintln(out, "suggestion:", s)
	}
}
