package cmd

import (
	"fmt"
	"time"

	"github.com/pb33f/pagecycle/sitegen"
	"github.com/spf13/cobra"
)

var (
	genPageCount    int
	genSubPages     int
	genOwnTiming    int
	genParagraphs   int
	genOutputDir    string
	genSeed         int64
	genDictPath     string
	genShowManifest bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a fixture site and manifest to benchmark",
	Long: `Generate a static site of dictionary text pages together with a page
manifest. Every n-th page reports its own load time through tpRecordTime, and
part of the site is listed by a second manifest pulled in with an include.

Examples:
  pagecycle generate -o site
  pagecycle generate -n 20 --sub-pages 5 --own-timing-every 4 -o site
  pagecycle generate --seed 42 --show-manifest`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	d := sitegen.DefaultGenerateOptions
	generateCmd.Flags().IntVarP(&genPageCount, "pages", "n", d.PageCount, "Number of pages listed by the root manifest")
	generateCmd.Flags().IntVar(&genSubPages, "sub-pages", d.SubPageCount, "Number of pages listed by the included manifest (0 = no include)")
	generateCmd.Flags().IntVar(&genOwnTiming, "own-timing-every", d.OwnTimingEvery, "Every n-th page reports its own time (0 = none)")
	generateCmd.Flags().IntVar(&genParagraphs, "paragraphs", d.Paragraphs, "Paragraphs of text per page")
	generateCmd.Flags().StringVarP(&genOutputDir, "output", "o", "", "Output directory (default: pagecycle-site-{timestamp})")
	generateCmd.Flags().Int64VarP(&genSeed, "seed", "s", 0, "Random seed for reproducibility (0 = use current time)")
	generateCmd.Flags().StringVarP(&genDictPath, "dict", "d", d.DictionaryPath, "Dictionary file path")
	generateCmd.Flags().BoolVar(&genShowManifest, "show-manifest", false, "Print the generated pages in load order")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	opts := sitegen.GenerateOptions{
		PageCount:      genPageCount,
		SubPageCount:   genSubPages,
		OwnTimingEvery: genOwnTiming,
		Paragraphs:     genParagraphs,
		DictionaryPath: genDictPath,
		Seed:           genSeed,
	}

	dir := genOutputDir
	if dir == "" {
		dir = fmt.Sprintf("pagecycle-site-%d", time.Now().Unix())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generating fixture site with %d pages", genPageCount+genSubPages)
	if genSubPages > 0 {
		fmt.Fprintf(out, " (%d through %s)", genSubPages, sitegen.SubManifestName)
	}
	fmt.Fprintln(out, "...")

	site, manifestPath, err := sitegen.GenerateToDir(dir, opts)
	if err != nil {
		return fmt.Errorf("failed to generate site: %w", err)
	}

	ownTiming := 0
	for _, p := range site.Pages {
		if p.OwnTiming {
			ownTiming++
		}
	}

	fmt.Fprintf(out, "\n✓ Generated site: %s\n", dir)
	fmt.Fprintf(out, "  Manifest:    %s\n", manifestPath)
	fmt.Fprintf(out, "  Pages:       %d\n", len(site.Pages))
	fmt.Fprintf(out, "  Own timing:  %d\n", ownTiming)

	if genShowManifest {
		fmt.Fprintf(out, "\nLoad order:\n")
		for i, p := range site.Pages {
			marker := " "
			if p.OwnTiming {
				marker = "%"
			}
			fmt.Fprintf(out, "  %s %3d  %s\n", marker, i, p.Path)
		}
	}

	fmt.Fprintf(out, "\nServe it with: pagecycle serve %s\n", dir)
	return nil
}
