package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/copwatch-uk/copwatch/internal/config"
)

var officersCmd = &cobra.Command{
	Use:   "officers",
	Short: "Inspect and correct the officer registry",
}

var officersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active officers",
	RunE:  runOfficersList,
}

var officersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one officer with appearances and merge history",
	Args:  cobra.ExactArgs(1),
	RunE:  runOfficersShow,
}

var officersSearchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Find active officers by name",
	Long: `Find active officers whose detected or overridden name matches.
Matching is case-insensitive and ignores diacritics and dashes, so
"sean smith jones" finds "Seán Smith-Jones".`,
	Args: cobra.ExactArgs(1),
	RunE: runOfficersSearch,
}

var officersSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Set manual overrides on an officer",
	Long: `Set manual override fields on an officer. Overrides always win over
detected values; the detected values themselves are never modified.
Pass an empty string to clear an override.`,
	Args: cobra.ExactArgs(1),
	RunE: runOfficersSet,
}

func init() {
	rootCmd.AddCommand(officersCmd)
	officersCmd.AddCommand(officersListCmd)
	officersCmd.AddCommand(officersShowCmd)
	officersCmd.AddCommand(officersSearchCmd)
	officersCmd.AddCommand(officersSetCmd)

	officersSetCmd.Flags().String("badge", "", "Badge number override")
	officersSetCmd.Flags().String("force", "", "Force override")
	officersSetCmd.Flags().String("rank", "", "Rank override")
	officersSetCmd.Flags().String("name", "", "Name override")
}

func parseOfficerID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid officer id %q", arg)
	}
	return id, nil
}

func runOfficersList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	officers, err := app.officers.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing officers: %w", err)
	}

	if len(officers) == 0 {
		fmt.Println("No officers in the registry")
		return nil
	}

	fmt.Printf("%-6s %-10s %-24s %-16s %-24s %s\n", "ID", "BADGE", "FORCE", "RANK", "NAME", "SIGHTINGS")
	for i := range officers {
		o := &officers[i]
		count, err := app.officers.CountByOfficer(ctx, o.ID, true)
		if err != nil {
			return fmt.Errorf("counting appearances: %w", err)
		}
		fmt.Printf("%-6d %-10s %-24s %-16s %-24s %d\n",
			o.ID, o.EffectiveBadge(), o.EffectiveForce(), o.EffectiveRank(), o.EffectiveName(), count)
	}
	fmt.Printf("\nTotal: %d active officers\n", len(officers))
	return nil
}

func runOfficersShow(cmd *cobra.Command, args []string) error {
	id, err := parseOfficerID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	officer, err := app.officers.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading officer %d: %w", id, err)
	}

	printField := func(label, effective, detected, override string) {
		if override != "" {
			fmt.Printf("%-16s %s (detected: %s, override set)\n", label+":", effective, orDash(detected))
			return
		}
		fmt.Printf("%-16s %s\n", label+":", orDash(effective))
	}

	fmt.Printf("Officer %d\n", officer.ID)
	printField("Badge", officer.EffectiveBadge(), officer.BadgeNumber, officer.BadgeOverride)
	printField("Force", officer.EffectiveForce(), officer.Force, officer.ForceOverride)
	printField("Rank", officer.EffectiveRank(), officer.Rank, officer.RankOverride)
	printField("Name", officer.EffectiveName(), officer.Name, officer.NameOverride)
	if officer.ShoulderNumber != "" {
		fmt.Printf("%-16s %s\n", "Shoulder number:", officer.ShoulderNumber)
	}
	if officer.HasEmbedding() {
		fmt.Printf("%-16s %s (%d dimensions)\n", "Embedding:", officer.EmbeddingModel, officer.EmbeddingDim)
	} else {
		fmt.Printf("%-16s none\n", "Embedding:")
	}
	if officer.IsMerged() {
		fmt.Printf("%-16s merged into officer %d\n", "Status:", *officer.MergedIntoID)
	}

	appearances, err := app.officers.ListByOfficer(ctx, id, true)
	if err != nil {
		return fmt.Errorf("listing appearances: %w", err)
	}
	fmt.Printf("\nSightings (%d):\n", len(appearances))
	for _, a := range appearances {
		ownership := ""
		if a.OfficerID != id {
			ownership = fmt.Sprintf(" (via merged officer %d)", a.OfficerID)
		}
		fmt.Printf("  media %d frame %d  confidence %.2f%s\n", a.MediaItemID, a.FrameNumber, a.Confidence, ownership)
	}

	merges, err := app.merges.ListMerges(ctx, id)
	if err != nil {
		return fmt.Errorf("listing merges: %w", err)
	}
	if len(merges) > 0 {
		fmt.Printf("\nMerge history:\n")
		for _, m := range merges {
			state := "active"
			if m.Unmerged {
				state = "reversed"
			}
			fmt.Printf("  #%d officer %d -> officer %d  confidence %.2f  %s\n",
				m.ID, m.MergedID, m.PrimaryID, m.Confidence, state)
		}
	}

	return nil
}

func runOfficersSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	officers, err := app.officers.SearchByName(ctx, args[0])
	if err != nil {
		return fmt.Errorf("searching officers: %w", err)
	}

	if len(officers) == 0 {
		fmt.Printf("No officers matching %q\n", args[0])
		return nil
	}

	fmt.Printf("%-6s %-10s %-24s %-16s %s\n", "ID", "BADGE", "FORCE", "RANK", "NAME")
	for i := range officers {
		o := &officers[i]
		fmt.Printf("%-6d %-10s %-24s %-16s %s\n",
			o.ID, o.EffectiveBadge(), o.EffectiveForce(), o.EffectiveRank(), o.EffectiveName())
	}
	return nil
}

func runOfficersSet(cmd *cobra.Command, args []string) error {
	id, err := parseOfficerID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	officer, err := app.officers.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading officer %d: %w", id, err)
	}

	changed := false
	apply := func(flag string, target *string) {
		if cmd.Flags().Changed(flag) {
			*target = mustGetString(cmd, flag)
			changed = true
		}
	}
	apply("badge", &officer.BadgeOverride)
	apply("force", &officer.ForceOverride)
	apply("rank", &officer.RankOverride)
	apply("name", &officer.NameOverride)

	if !changed {
		return fmt.Errorf("no override flags given, nothing to do")
	}

	if err := app.officers.Save(ctx, officer); err != nil {
		return fmt.Errorf("saving officer: %w", err)
	}

	fmt.Printf("Officer %d updated: badge=%s force=%s rank=%s name=%s\n",
		officer.ID, orDash(officer.EffectiveBadge()), orDash(officer.EffectiveForce()),
		orDash(officer.EffectiveRank()), orDash(officer.EffectiveName()))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
