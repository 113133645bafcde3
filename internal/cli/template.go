package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scbrown/storyrun/internal/catalog"
	"github.com/scbrown/storyrun/internal/model"
	"github.com/scbrown/storyrun/internal/story"
)

var (
	templateCategory string
	templateFormat   string
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Manage the template catalog",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			templates, err := svc.Templates(ctx)
			if err != nil {
				return err
			}
			templates = catalog.InCategory(templates, templateCategory)
			if jsonOutput {
				if templates == nil {
					templates = []model.Template{}
				}
				return printJSON(templates)
			}
			if len(templates) == 0 {
				fmt.Println("No templates. Import some with: sr template import <file>")
				return nil
			}
			tbl := NewTable(os.Stdout, "ID", "NAME", "CATEGORY", "SECTIONS", "ADDED")
			for _, t := range templates {
				added := ""
				if !t.CreatedAt.IsZero() {
					added = humanize.Time(t.CreatedAt)
				}
				tbl.Row(t.ID, t.Name, t.Category, strconv.Itoa(len(t.Sections)), added)
			}
			return tbl.Flush()
		})
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template's sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			t, err := svc.Template(ctx, args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return notFoundHint(ctx, svc, model.NotFound("template", args[0]))
			}
			if jsonOutput {
				return printJSON(t)
			}
			color := isTTY(os.Stdout)
			fmt.Printf("Template:  %s (%s)\n", bold(t.Name, color), t.ID)
			if t.Category != "" {
				fmt.Printf("Category:  %s\n", t.Category)
			}
			fmt.Printf("Sections:  %d\n", len(t.Sections))
			for i, s := range t.Sections {
				fmt.Printf("  %d. %s\n", i, s.Name)
				if s.Description != "" {
					fmt.Printf("     %s\n", indent(s.Description, "     "))
				}
			}
			return nil
		})
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import templates from a JSON or YAML file",
	Long: `Import appends templates to the catalog; existing templates are never
replaced. The file holds a list of records:

  - name: Login Flow
    category: auth
    sections:
      - name: Open the login page
        description: The form renders with both fields

Every imported template gets a fresh id, so importing a file twice adds
two copies. The format follows the file extension; use - to read stdin,
where the format is detected from the content.`,
	Example: `  sr template import templates.yaml
  cat templates.json | sr template import - --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := fileFormat(args[0])
		if err != nil {
			return err
		}
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			imported, err := svc.ImportTemplates(ctx, r, format)
			if err != nil && len(imported) == 0 {
				return err
			}
			if jsonOutput {
				if perr := printJSON(imported); perr != nil {
					return perr
				}
				return err
			}
			fmt.Printf("Imported %d templates\n", len(imported))
			for _, t := range imported {
				fmt.Printf("  %s  %s\n", t.ID, t.Name)
			}
			return err
		})
	},
}

var templateExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the template catalog",
	Long: `Export writes every template to a file, or to stdout when no file is
given. The format follows the file extension unless --format is set.`,
	Example: `  sr template export templates.yaml
  sr template export --format json > templates.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		format, err := fileFormat(path)
		if err != nil {
			return err
		}
		if format == "" {
			format = catalog.FormatJSON
		}
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			if path == "-" {
				return svc.ExportTemplates(ctx, os.Stdout, format)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			if err := svc.ExportTemplates(ctx, f, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported templates to %s\n", path)
			return nil
		})
	},
}

var templateCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List template categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *story.Service) error {
			templates, err := svc.Templates(ctx)
			if err != nil {
				return err
			}
			cats := catalog.Categories(templates)
			if jsonOutput {
				if cats == nil {
					cats = []catalog.CategoryCount{}
				}
				return printJSON(cats)
			}
			tbl := NewTable(os.Stdout, "CATEGORY", "TEMPLATES")
			for _, c := range cats {
				tbl.Row(c.Name, strconv.Itoa(c.Count))
			}
			return tbl.Flush()
		})
	},
}

func init() {
	templateListCmd.Flags().StringVar(&templateCategory, "category", "", "only templates in this category")
	templateImportCmd.Flags().StringVar(&templateFormat, "format", "", "json or yaml (default: from extension or content)")
	templateExportCmd.Flags().StringVar(&templateFormat, "format", "", "json or yaml (default: from extension, else json)")

	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateImportCmd, templateExportCmd, templateCategoriesCmd)
	rootCmd.AddCommand(templateCmd)
}

// fileFormat resolves --format, falling back to the file extension. An
// empty result means "detect".
func fileFormat(path string) (catalog.Format, error) {
	if templateFormat != "" {
		return catalog.ParseFormat(templateFormat)
	}
	if path == "-" {
		return "", nil
	}
	return catalog.FormatFromPath(path), nil
}
