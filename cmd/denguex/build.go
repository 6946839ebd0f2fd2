package main

import (
	"fmt"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBuildCmd() *cobra.Command {
	var kbPath, outDir string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed the knowledge base into an index bundle",
		Long: `Embed every question variant of the knowledge base and write an index
bundle that "serve", "ask" and "chat" open without re-embedding.

The knowledge base may be JSON Lines (.jsonl) or a spreadsheet (.xlsx).
A running "serve --watch" picks up the new bundle once the manifest is
written.

Examples:
  denguex build
  denguex build --kb data/dengue_kb.xlsx --out data/index`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if kbPath == "" {
				kbPath = a.cfg.Knowledge.Path
			}
			if outDir == "" {
				outDir = a.cfg.Knowledge.IndexDir
			}

			catalog, err := knowledge.LoadFile(kbPath)
			if err != nil {
				return fmt.Errorf("failed to load knowledge base: %w", err)
			}

			m, err := chatbot.BuildBundle(ctx, outDir, catalog, a.embedder, a.cfg.VectorStore, a.cfg.Embeddings.BatchSize, a.logger)
			if err != nil {
				return fmt.Errorf("failed to build bundle: %w", err)
			}
			a.logger.Info("index bundle built",
				zap.String("dir", outDir),
				zap.Int("entries", m.Entries),
				zap.Int("vectors", m.Vectors),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Built %s: %d entries, %d vectors (%s, %s)\n",
				outDir, m.Entries, m.Vectors, m.Provider, m.Model)
			return nil
		},
	}
	cmd.Flags().StringVar(&kbPath, "kb", "", "knowledge base file (default knowledge.path)")
	cmd.Flags().StringVar(&outDir, "out", "", "bundle directory (default knowledge.index_dir)")
	return cmd
}
