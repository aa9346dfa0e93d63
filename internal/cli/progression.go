package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vijayaragavanr18/Vervathon25/internal/app/progression"
	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

func init() {
	recordCmd.Flags().IntVar(&recordScore, "score", -1, "Quiz score 0-100 (quiz_completed only)")
	recordCmd.Flags().StringVar(&recordDesc, "description", "", "Free-text description")
	recordCmd.Flags().StringVar(&recordKey, "key", "", "Idempotency key; repeats are recorded once")
	leaderboardCmd.Flags().IntVar(&pageLimit, "limit", 10, "Rows to show")
	leaderboardCmd.Flags().IntVar(&pageOffset, "offset", 0, "Rows to skip")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Entries to show")

	rootCmd.AddCommand(recordCmd, progressCmd, leaderboardCmd, achievementsCmd, historyCmd, rescanCmd, reconcileCmd)
}

var (
	recordScore  int
	recordDesc   string
	recordKey    string
	pageLimit    int
	pageOffset   int
	historyLimit int
)

// ─── record ─────────────────────────────────────────────────────────────────

var recordCmd = &cobra.Command{
	Use:   "record <user> <kind> <points>",
	Short: "Record an activity",
	Long: `Record an activity and apply its effects.
Kinds: ` + kindList(),
	Args: cobra.ExactArgs(3),
	RunE: runRecord,
}

func kindList() string {
	kinds := make([]string, len(domain.CallerKinds))
	for i, k := range domain.CallerKinds {
		kinds[i] = string(k)
	}
	return strings.Join(kinds, ", ")
}

func runRecord(cmd *cobra.Command, args []string) error {
	points, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("points %q: %w", args[2], err)
	}
	in := progression.ActivityInput{
		UserID:         domain.UserID(args[0]),
		Kind:           domain.ActivityKind(args[1]),
		Points:         points,
		Description:    recordDesc,
		IdempotencyKey: recordKey,
	}
	if cmd.Flags().Changed("score") {
		in.Score = &recordScore
	}

	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Coordinator.RecordActivity(cmd.Context(), in)
	if res == nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		if perr := printJSON(out, res); perr != nil {
			return perr
		}
		return err
	}
	printResult(out, res)
	return err
}

func printResult(w io.Writer, res *progression.Result) {
	switch {
	case res.Duplicate:
		fmt.Fprintf(w, "Already recorded. %s has %d XP (level %d).\n", res.UserID, res.TotalXP, res.NewLevel)
		return
	case res.Degraded:
		fmt.Fprintf(w, "Recorded entry %s; progress will catch up on the next rescan.\n", res.EntryID)
		return
	}
	fmt.Fprintf(w, "+%d XP  total %d  level %d\n", res.XPAdded, res.TotalXP, res.NewLevel)
	if res.LeveledUp {
		fmt.Fprintf(w, "Level up! %d -> %d\n", res.PreviousLevel, res.NewLevel)
	}
	for _, a := range res.NewlyUnlocked {
		fmt.Fprintf(w, "Unlocked: %s (+%d XP)\n", a.Title, a.XPReward)
	}
	for _, m := range res.MilestoneRewards {
		fmt.Fprintf(w, "Milestone: level %d bonus +%d XP\n", m.Level, m.Bonus)
	}
	if res.Streak.Current > 0 {
		fmt.Fprintf(w, "Streak: %d day(s), best %d\n", res.Streak.Current, res.Streak.Longest)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

// ─── progress ───────────────────────────────────────────────────────────────

var progressCmd = &cobra.Command{
	Use:   "progress <user>",
	Short: "Show a user's level, streak and rank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		v, err := d.Queries.Progress(cmd.Context(), domain.UserID(args[0]))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, v)
		}
		fmt.Fprintf(out, "%s  level %d  %d XP  rank #%d\n", v.UserID, v.Level, v.TotalXP, v.Rank)
		fmt.Fprintf(out, "%s %d XP to level %d\n", levelBar(v.ProgressPercent), v.XPToNext, v.Level+1)
		fmt.Fprintf(out, "Streak: %d day(s), best %d\n", v.Streak.Current, v.Streak.Longest)
		fmt.Fprintf(out, "Achievements: %d / %d\n", v.AchievementsEarned, v.AchievementsTotal)
		if v.Stale {
			fmt.Fprintln(out, "(progress is catching up; run 'genavator rescan' to apply now)")
		}
		return nil
	},
}

const barWidth = 30

// levelBar renders [██████░░░░] 42%.
func levelBar(pct int) string {
	pct = min(max(pct, 0), 100)
	filled := barWidth * pct / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "] " + strconv.Itoa(pct) + "%"
}

// ─── leaderboard ────────────────────────────────────────────────────────────

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"top"},
	Short:   "Show users ranked by XP",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		rows, err := d.Queries.Leaderboard(cmd.Context(), pageLimit, pageOffset)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No progress recorded yet.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tUSER\tLEVEL\tXP\tUPDATED")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", r.Rank, r.UserID, r.Level, r.TotalXP, r.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

// ─── achievements ───────────────────────────────────────────────────────────

var achievementsCmd = &cobra.Command{
	Use:   "achievements [user]",
	Short: "List the achievement catalog, or a user's unlock state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		var statuses []progression.AchievementStatus
		if len(args) == 1 {
			statuses, err = d.Queries.Achievements(cmd.Context(), domain.UserID(args[0]))
			if err != nil {
				return err
			}
		} else {
			for _, def := range d.Queries.Catalog() {
				statuses = append(statuses, progression.AchievementStatus{AchievementDef: def})
			}
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, statuses)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tXP\tCONDITION\tUNLOCKED")
		for _, s := range statuses {
			unlocked := ""
			if s.UnlockedAt != nil {
				unlocked = s.UnlockedAt.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Title, s.XPReward, s.Predicate, unlocked)
		}
		return w.Flush()
	},
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "Show a user's recent ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		entries, err := d.Queries.History(cmd.Context(), domain.UserID(args[0]), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, entries)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tKIND\tPOINTS\tSCORE\tDESCRIPTION")
		for _, e := range entries {
			score := ""
			if e.Score != nil {
				score = strconv.Itoa(*e.Score)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.OccurredAt.Format("2006-01-02 15:04"), e.Kind, e.Points, score, e.Description)
		}
		return w.Flush()
	},
}

// ─── rescan / reconcile ─────────────────────────────────────────────────────

var rescanCmd = &cobra.Command{
	Use:   "rescan <user>",
	Short: "Recompute a user's derived state from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.Coordinator.Rescan(cmd.Context(), domain.UserID(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rescan every user whose progress lags the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		n, err := d.Reconciler.RunOnce(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d user(s).\n", n)
		if err != nil {
			return errors.Join(errors.New("some rescans failed"), err)
		}
		return nil
	},
}
