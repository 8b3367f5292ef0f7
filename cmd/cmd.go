// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/asyml/texar-go/envconfig"
	"github.com/asyml/texar-go/hparams"
	"github.com/asyml/texar-go/logutil"
	"github.com/asyml/texar-go/model"
	_ "github.com/asyml/texar-go/model/models/t5"
	"github.com/asyml/texar-go/nn"
	"github.com/asyml/texar-go/pretrained"
)

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "texar",
		Short:         "Encoder-decoder model builder and checkpoint loader",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "List known pretrained model presets",
		Args:  cobra.ExactArgs(0),
		RunE:  presetsHandler,
	}

	pullCmd := &cobra.Command{
		Use:   "pull PRESET",
		Short: "Download a pretrained checkpoint into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE:  pullHandler,
	}

	showCmd := &cobra.Command{
		Use:   "show PRESET",
		Short: "Build a model for a preset and show its parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  showHandler,
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "List cached checkpoints",
		Args:  cobra.ExactArgs(0),
		RunE:  cacheHandler,
	}

	cacheClearCmd := &cobra.Command{
		Use:   "clear [MODEL]",
		Short: "Remove cached checkpoints",
		Args:  cobra.MaximumNArgs(1),
		RunE:  cacheClearHandler,
	}
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(presetsCmd, pullCmd, showCmd, cacheCmd)
	return rootCmd
}

func presetsHandler(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tREPOSITORY\tDESCRIPTION")
	for _, name := range pretrained.PresetNames() {
		preset := pretrained.Presets[name]
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, preset.ModelID, preset.Description)
	}
	return w.Flush()
}

func pullHandler(cmd *cobra.Command, args []string) error {
	preset, err := pretrained.Lookup(args[0])
	if err != nil {
		return err
	}

	path, err := preset.Fetch(cmd.Context(), pretrained.NewClient())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "checkpoint: %s\n", path)
	return nil
}

func showHandler(cmd *cobra.Command, args []string) error {
	m, err := model.New("t5", hparams.Map{"pretrained_model_name": args[0]})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name: %s\n", m.Name())
	fmt.Fprintf(out, "architecture: t5\n")

	w := tabwriter.NewWriter(out, 0, 2, 3, ' ', 0)
	for _, key := range m.HParams().Keys() {
		val, _ := m.HParams().Get(key)
		if _, nested := val.(*hparams.HParams); nested {
			continue
		}
		fmt.Fprintf(w, "  %s\t%v\n", key, val)
	}
	w.Flush()

	fmt.Fprintf(out, "parameters: %d\n", nn.NumParameters(m))
	return nil
}

func cacheHandler(cmd *cobra.Command, args []string) error {
	models, err := pretrained.ListCachedModels()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 3, ' ', 0)
	fmt.Fprintln(w, "MODEL\tFILES\tSIZE")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%d\t%s\n", m.ModelID, m.FileCount, formatBytes(m.TotalSize))
	}
	return w.Flush()
}

func cacheClearHandler(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return pretrained.ClearModelCache(args[0])
	}
	return pretrained.ClearCache()
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
