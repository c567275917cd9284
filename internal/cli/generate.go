package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"QAForge/internal/app"
	"QAForge/internal/config"
	"QAForge/internal/domain"
	"QAForge/internal/usecase"
)

type generateFlags struct {
	originType string
	output     string
	name       string
	splitTiers bool
	metadata   bool
}

func (r *root) generateCommand() *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate <resource>...",
		Short: "Generate a dataset from text, files or web pages",
		Long: `Runs the pipeline over the given resources. Each resource is a
URL, a path to a .txt/.md file or literal text; use --type to skip detection.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runGenerate(cmd, args, f)
		},
	}
	cmd.Flags().StringVarP(&f.originType, "type", "t", "", "resource type: text, file or web (detected when empty)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "dataset path (default <output.dir>/<name>.jsonl)")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "dataset name (default training_dataset_<timestamp>)")
	cmd.Flags().BoolVar(&f.splitTiers, "split-tiers", false, "also write <name>_high.jsonl and <name>_medium.jsonl")
	cmd.Flags().BoolVar(&f.metadata, "metadata", false, "also write <name>_metadata.json")
	return cmd
}

func (r *root) runGenerate(cmd *cobra.Command, args []string, f generateFlags) error {
	originType := domain.OriginType(f.originType)
	switch originType {
	case "", domain.OriginText, domain.OriginFile, domain.OriginWeb:
	default:
		return fmt.Errorf("unknown resource type %q", f.originType)
	}

	a, err := r.application(cmd, func(cfg *config.Config) {
		cfg.Output.SplitTiers = cfg.Output.SplitTiers || f.splitTiers
		cfg.Output.WriteMetadata = cfg.Output.WriteMetadata || f.metadata
	})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Generate(cmd.Context(), app.GenerateRequest{
		Resources: args,
		Type:      originType,
		Name:      f.name,
		Output:    f.output,
	})
	printResult(cmd, res)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	return nil
}

func printResult(cmd *cobra.Command, res usecase.Result) {
	s := res.Stats
	cmd.Printf("Run %s (%s): %s\n", res.Name, res.RunID, res.State)
	cmd.Printf("  documents:   %d\n", s.Documents)
	cmd.Printf("  chunks:      %d ok, %d failed\n", s.ChunksProcessed, s.ChunksFailed)
	cmd.Printf("  generated:   %d pairs (%d unparseable, %d invalid)\n", s.PairsGenerated, s.PairsUnparseable, s.PairsInvalid)
	cmd.Printf("  rejected:    %d\n", s.PairsRejected)
	cmd.Printf("  duplicates:  %d\n", s.DuplicatesRemoved)
	cmd.Printf("  written:     %d (%d high, %d medium)\n", s.PairsWritten, s.HighWritten, s.MediumWritten)
	cmd.Printf("  retention:   %.1f%%\n", 100*s.RetentionRate())
	if res.State == domain.StateDone {
		cmd.Printf("Dataset: %s\n", res.OutputPath)
		for _, extra := range res.Summary.Files[min(1, len(res.Summary.Files)):] {
			cmd.Printf("  + %s\n", extra)
		}
		if res.Summary.MetadataPath != "" {
			cmd.Printf("  + %s\n", res.Summary.MetadataPath)
		}
	}
}
