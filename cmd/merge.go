package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/copwatch-uk/copwatch/internal/config"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Find and apply merges of duplicate officer identities",
}

var mergeCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Scan embeddings for likely duplicate officers",
	RunE:  runMergeCandidates,
}

var mergeApplyCmd = &cobra.Command{
	Use:   "apply <primary-id> <candidate-id>",
	Short: "Merge a candidate officer into a primary officer",
	Args:  cobra.ExactArgs(2),
	RunE:  runMergeApply,
}

var mergeAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Automatically merge all candidate pairs above the auto threshold",
	RunE:  runMergeAuto,
}

var mergeUndoCmd = &cobra.Command{
	Use:   "undo <merge-id>",
	Short: "Reverse a previously applied merge",
	RunE:  runMergeUndo,
	Args:  cobra.ExactArgs(1),
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.AddCommand(mergeCandidatesCmd)
	mergeCmd.AddCommand(mergeApplyCmd)
	mergeCmd.AddCommand(mergeAutoCmd)
	mergeCmd.AddCommand(mergeUndoCmd)

	mergeApplyCmd.Flags().Float64("confidence", 0, "Merge confidence, defaults to the pair similarity")
	mergeApplyCmd.Flags().String("actor", "cli", "Who is applying the merge")
	mergeAutoCmd.Flags().Bool("dry-run", false, "Print what would be merged without applying")
	mergeUndoCmd.Flags().String("actor", "cli", "Who is reversing the merge")
}

func runMergeCandidates(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	candidates, err := app.merger.FindCandidates(ctx)
	if err != nil {
		return fmt.Errorf("scanning for candidates: %w", err)
	}

	if len(candidates) == 0 {
		fmt.Println("No merge candidates found")
		return nil
	}

	fmt.Printf("%-10s %-12s %s\n", "PRIMARY", "CANDIDATE", "SIMILARITY")
	for _, c := range candidates {
		marker := ""
		if c.Similarity > app.merger.AutoThreshold() {
			marker = "  (auto)"
		}
		fmt.Printf("%-10d %-12d %.4f%s\n", c.PrimaryID, c.CandidateID, c.Similarity, marker)
	}
	fmt.Printf("\n%d candidate pairs, auto threshold %.2f\n", len(candidates), app.merger.AutoThreshold())
	return nil
}

func runMergeApply(cmd *cobra.Command, args []string) error {
	primaryID, err := parseOfficerID(args[0])
	if err != nil {
		return err
	}
	candidateID, err := parseOfficerID(args[1])
	if err != nil {
		return err
	}
	confidence := mustGetFloat64(cmd, "confidence")
	actor := mustGetString(cmd, "actor")

	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	if !cmd.Flags().Changed("confidence") {
		candidates, err := app.merger.FindCandidates(ctx)
		if err != nil {
			return fmt.Errorf("scanning for candidates: %w", err)
		}
		for _, c := range candidates {
			if c.PrimaryID == primaryID && c.CandidateID == candidateID {
				confidence = c.Similarity
				break
			}
		}
		if confidence == 0 {
			return fmt.Errorf("officers %d and %d are not a candidate pair, pass --confidence explicitly", primaryID, candidateID)
		}
	}

	record, err := app.merger.Merge(ctx, primaryID, candidateID, confidence, false, actor)
	if err != nil {
		return fmt.Errorf("merging officer %d into %d: %w", candidateID, primaryID, err)
	}

	fmt.Printf("Merge #%d applied: officer %d -> officer %d (confidence %.4f)\n",
		record.ID, candidateID, primaryID, confidence)
	return nil
}

func runMergeAuto(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")

	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	candidates, err := app.merger.FindCandidates(ctx)
	if err != nil {
		return fmt.Errorf("scanning for candidates: %w", err)
	}

	applied := 0
	skipped := 0
	for _, c := range candidates {
		if c.Similarity <= app.merger.AutoThreshold() {
			skipped++
			continue
		}
		if dryRun {
			fmt.Printf("Would merge officer %d -> officer %d (similarity %.4f)\n",
				c.CandidateID, c.PrimaryID, c.Similarity)
			applied++
			continue
		}
		record, err := app.merger.Merge(ctx, c.PrimaryID, c.CandidateID, c.Similarity, true, "auto")
		if err != nil {
			// a candidate may have been merged by an earlier pair in the same run
			fmt.Printf("Skipping officer %d -> officer %d: %v\n", c.CandidateID, c.PrimaryID, err)
			skipped++
			continue
		}
		fmt.Printf("Merge #%d applied: officer %d -> officer %d (similarity %.4f)\n",
			record.ID, c.CandidateID, c.PrimaryID, c.Similarity)
		applied++
	}

	fmt.Printf("\nDone. %d merged, %d below threshold or skipped\n", applied, skipped)
	return nil
}

func runMergeUndo(cmd *cobra.Command, args []string) error {
	mergeID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || mergeID <= 0 {
		return fmt.Errorf("invalid merge id %q", args[0])
	}
	actor := mustGetString(cmd, "actor")

	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.merger.Unmerge(ctx, mergeID, actor); err != nil {
		return fmt.Errorf("reversing merge %d: %w", mergeID, err)
	}

	fmt.Printf("Merge #%d reversed by %s\n", mergeID, actor)
	return nil
}
