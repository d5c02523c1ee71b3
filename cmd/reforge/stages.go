package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NicolasKol/reforge/internal/pipeline"
)

var stageOpt string

// stagePipeline builds a filesystem-only pipeline for stage commands.
func stagePipeline() (*pipeline.Pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, nil, newLogger(cfg)), nil
}

// stageOpts resolves the target optimization levels for a stage command.
func stageOpts(pl *pipeline.Pipeline, name string) []string {
	if stageOpt != "" {
		return []string{stageOpt}
	}
	return pl.Optimizations(name)
}

var oracleDwarfCmd = &cobra.Command{
	Use:   "oracle-dwarf <name>",
	Short: "Extract the DWARF function index from the debug binaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := stagePipeline()
		if err != nil {
			return err
		}
		for _, opt := range stageOpts(pl, args[0]) {
			report, err := pl.RunDwarfOracle(args[0], opt)
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s: %s (%d functions: %d accept, %d warn, %d reject)\n",
				args[0], opt, report.Verdict, report.NFunctions,
				report.NAccept, report.NWarn, report.NReject)
		}
		return nil
	},
}

var oracleTsCmd = &cobra.Command{
	Use:   "oracle-ts <name> [i-paths...]",
	Short: "Index preprocessed translation units with tree-sitter",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := stagePipeline()
		if err != nil {
			return err
		}
		report, err := pl.RunTsOracle(context.Background(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d TUs, %d functions (%d accept, %d warn, %d reject)\n",
			args[0], len(report.TuReports), report.NFunctions,
			report.NAccept, report.NWarn, report.NReject)
		return nil
	},
}

var joinDwarfTsCmd = &cobra.Command{
	Use:   "join-dwarf-ts <name>",
	Short: "Align DWARF functions to tree-sitter functions via #line maps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := stagePipeline()
		if err != nil {
			return err
		}
		for _, opt := range stageOpts(pl, args[0]) {
			report, err := pl.RunJoinDwarfTs(args[0], opt)
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s: %d match, %d ambiguous, %d no-match, %d non-target\n",
				args[0], opt, report.NMatch, report.NAmbiguous,
				report.NNoMatch, report.NNonTarget)
		}
		return nil
	},
}

var reshapeRawPath string

var reshapeDecompileCmd = &cobra.Command{
	Use:   "reshape-decompile <name>",
	Short: "Reshape raw decompiler JSONL into validated row files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := stagePipeline()
		if err != nil {
			return err
		}
		for _, opt := range stageOpts(pl, args[0]) {
			report, err := pl.RunReshapeDecompile(args[0], opt, reshapeRawPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s: %s (%d functions: %d ok, %d warn, %d fail)\n",
				args[0], opt, report.Verdict, report.NFunctions,
				report.NOk, report.NWarn, report.NFail)
		}
		return nil
	},
}

var joinDecompileCmd = &cobra.Command{
	Use:   "join-decompile <name>",
	Short: "Join oracle and alignment views to decompiler output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := stagePipeline()
		if err != nil {
			return err
		}
		for _, opt := range stageOpts(pl, args[0]) {
			report, err := pl.RunJoinDecompile(args[0], opt)
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s: %d rows (%d strong, %d weak, %d multi, %d no-match, %d no-range, %d high-confidence)\n",
				args[0], opt, report.NRows, report.NJoinedStrong, report.NJoinedWeak,
				report.NMultiMatch, report.NNoMatch, report.NNoRange, report.NHighConfidence)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{
		oracleDwarfCmd, joinDwarfTsCmd, reshapeDecompileCmd, joinDecompileCmd,
	} {
		cmd.Flags().StringVar(&stageOpt, "opt", "", "optimization level (default: all from receipt)")
	}
	reshapeDecompileCmd.Flags().StringVar(&reshapeRawPath, "raw", "", "path to raw decompiler jsonl")

	rootCmd.AddCommand(oracleDwarfCmd, oracleTsCmd, joinDwarfTsCmd, reshapeDecompileCmd, joinDecompileCmd)
}
