package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NicolasKol/reforge/internal/paths"
	"github.com/NicolasKol/reforge/internal/pipeline"
	"github.com/NicolasKol/reforge/internal/snapshot"
)

var (
	buildName     string
	buildCategory string
	buildProfile  string
	buildForce    bool
)

var buildCmd = &cobra.Command{
	Use:   "build [files...]",
	Short: "Build a source snapshot across the optimization × variant matrix",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		inputs := make([]snapshot.Input, 0, len(args))
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			inputs = append(inputs, snapshot.Input{
				PathRel: filepath.Base(path),
				Content: content,
			})
		}

		name := buildName
		if name == "" {
			name = paths.Stem(args[0])
		}

		pl := pipeline.New(cfg, nil, logger)
		receipt, err := pl.RunBuild(context.Background(), pipeline.BuildRequest{
			JobID:        uuid.New().String(),
			Name:         name,
			TestCategory: buildCategory,
			Files:        inputs,
			ProfilePath:  buildProfile,
			Force:        buildForce,
		})
		if err != nil {
			return err
		}

		fmt.Printf("job %s: %s (%d cells)\n", receipt.Job.Name, receipt.Job.Status, len(receipt.Builds))
		for _, cell := range receipt.Builds {
			artifact := "-"
			if cell.Artifact != nil {
				artifact = cell.Artifact.SHA256[:12]
			}
			fmt.Printf("  %s/%s: %s %s\n", cell.Optimization, cell.Variant, cell.Status, artifact)
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildName, "name", "", "job name (default: stem of first file)")
	buildCmd.Flags().StringVar(&buildCategory, "category", "", "test category")
	buildCmd.Flags().StringVar(&buildProfile, "profile", "", "path to a profile YAML (default: locked profile)")
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "replace an existing job directory")
	rootCmd.AddCommand(buildCmd)
}
