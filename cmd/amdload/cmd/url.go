package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/amd"
	"github.com/GoCodeAlone/amd/feeders"
)

// NewURLCommand creates the url command.
func NewURLCommand() *cobra.Command {
	var (
		configFile string
		relativeTo string
		ext        string
		resource   bool
		doc        amd.ConfigDocument
		urlArgs    string
	)
	cmd := &cobra.Command{
		Use:   "url ID",
		Short: "Show the URL a module identifier loads from",
		Long: `Resolve a module identifier and map it to its URL using a configuration.

The configuration comes from the "config" table of --config, then the
--base-url, --path and --url-args flags.

Examples:
  amdload url app/main --base-url /static --path lib=vendor/lib
  amdload url ./util --relative-to app/main --config app.yaml
  amdload url ./styles.css --resource --relative-to app/main`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				file, err := feeders.ForFile(configFile)
				if err != nil {
					return err
				}
				var fromFile amd.ConfigDocument
				if err := file.FeedKey("config", &fromFile); err != nil {
					return err
				}
				fromFile.BaseURL = firstNonEmpty(doc.BaseURL, fromFile.BaseURL)
				if fromFile.Paths == nil {
					fromFile.Paths = map[string]string{}
				}
				for k, v := range doc.Paths {
					fromFile.Paths[k] = v
				}
				doc.BaseURL, doc.Paths, doc.URLArgs, doc.Extra = fromFile.BaseURL, fromFile.Paths, fromFile.URLArgs, fromFile.Extra
			}
			if urlArgs != "" {
				if err := doc.URLArgs.UnmarshalText([]byte(urlArgs)); err != nil {
					return err
				}
			}
			cfg := amd.NewConfig(doc)

			id := args[0]
			if resource {
				u, err := amd.ResourceURL(id, relativeTo, cfg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
				return nil
			}
			if !amd.IsValidIdentifier(amd.Resolve(id, relativeTo)) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q is not a valid module identifier\n", id)
			}
			fmt.Fprintln(cmd.OutOrStdout(), amd.ToURL(id, relativeTo, cfg, ext))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Bootstrap document whose config table to use")
	cmd.Flags().StringVar(&relativeTo, "relative-to", "", "Identifier of the requesting module")
	cmd.Flags().StringVar(&ext, "ext", amd.DefaultExtension, "Extension appended to module paths")
	cmd.Flags().BoolVar(&resource, "resource", false, "Treat ID as a resource path with its own extension")
	cmd.Flags().StringVar(&doc.BaseURL, "base-url", "", "Base URL prepended to module paths")
	cmd.Flags().StringToStringVar(&doc.Paths, "path", nil, "Path alias as prefix=replacement (repeatable)")
	cmd.Flags().StringVar(&urlArgs, "url-args", "", "Query string appended to module URLs")

	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
