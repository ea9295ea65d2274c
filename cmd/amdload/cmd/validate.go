package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/amd"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var printSchema bool
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check module documents against the module document schema",
		Long: `Decode module documents and check each against the module document schema.

A document is an object with a "module" value, an optional "id" and an
optional list of "imports". YAML files may hold several documents and JSON
files an array of them.

Examples:
  amdload validate lib/*.yaml
  amdload validate --schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				fmt.Fprintln(cmd.OutOrStdout(), amd.ModuleDocumentSchema)
				return nil
			}
			if len(args) == 0 {
				return errors.New("no files to validate")
			}

			failed := 0
			for _, file := range args {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				docs, err := amd.DecodeModuleDocuments(filepath.Ext(file), data)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", file, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d document(s) ok\n", file, len(docs))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) invalid", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printSchema, "schema", false, "Print the module document schema and exit")

	return cmd
}
