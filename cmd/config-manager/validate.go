package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/validate"
)

func newValidateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and structurally validate every document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			refs, err := discover(cfg)
			if err != nil {
				return err
			}

			var allErrors []*validate.ValidationError
			for _, ref := range refs {
				allErrors = append(allErrors, validateDocument(ref)...)
			}

			out := cmd.OutOrStdout()
			if len(allErrors) == 0 {
				fmt.Fprintf(out, "%d document(s) valid\n", len(refs))
				return nil
			}

			switch format {
			case "json":
				type jsonError struct {
					File    string `json:"file"`
					Field   string `json:"field"`
					Message string `json:"message"`
					Hint    string `json:"hint,omitempty"`
				}
				var list []jsonError
				for _, e := range allErrors {
					list = append(list, jsonError{File: e.File, Field: e.Field, Message: e.Message, Hint: e.Hint})
				}
				data, err := json.MarshalIndent(list, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			default:
				for _, e := range allErrors {
					fmt.Fprintln(out, e.Error())
				}
			}
			return fmt.Errorf("%d validation error(s)", len(allErrors))
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text or json)")
	return cmd
}

func validateDocument(ref document.Ref) []*validate.ValidationError {
	raw, err := os.ReadFile(ref.Path)
	if err != nil {
		return []*validate.ValidationError{{File: ref.Path, Field: "document", Message: err.Error()}}
	}
	doc, err := document.Parse(ref.Path, raw)
	if err != nil {
		return []*validate.ValidationError{{File: ref.Path, Field: "document", Message: err.Error()}}
	}
	return validate.ValidateStructural(doc)
}
