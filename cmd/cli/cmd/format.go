package cmd

import (
	"fmt"
	"time"

	"prodflow/pkg/api"

	"github.com/spf13/cobra"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "finished_this_room", "finished_production":
		return colorGreen + "✓" + colorReset
	case "in_progress":
		return colorYellow + "⏳" + colorReset
	case "waiting_admin_verification":
		return colorYellow + "?" + colorReset
	case "ready_to_move":
		return colorCyan + "→" + colorReset
	case "waiting":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "finished_this_room", "finished_production":
		return icon + " " + colorGreen + status + colorReset
	case "in_progress", "waiting_admin_verification":
		return icon + " " + colorYellow + status + colorReset
	case "waiting", "ready_to_move":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func colorizeOutcome(outcome string) string {
	switch outcome {
	case "release":
		return colorGreen + outcome + colorReset
	case "reject":
		return colorRed + outcome + colorReset
	case "":
		return "-"
	}
	return outcome
}

func printBatch(cmd *cobra.Command, b api.BatchResponse) {
	cmd.Printf("%s %sBatch %s%s\n", statusIcon(b.Status), colorBold, b.BatchNumber, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, b.ID)
	cmd.Printf("%sRoom:%s        %s\n", colorDim, colorReset, b.RoomID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(b.Status))
	cmd.Printf("%sProgress:%s    %d/%d %s (%s%%)\n", colorDim, colorReset, b.Progress, b.TargetQuantity, b.Unit, b.ProgressPercent.StringFixed(2))

	if b.EstimatedPackaging != nil {
		count := 0
		if b.PackagingCount != nil {
			count = *b.PackagingCount
		}
		unit := ""
		if b.PackagingUnit != nil {
			unit = " " + *b.PackagingUnit
		}
		pct := "-"
		if b.PackagingPercent != nil {
			pct = b.PackagingPercent.StringFixed(2) + "%"
		}
		cmd.Printf("%sPackaging:%s   %d/%d%s (%s)\n", colorDim, colorReset, count, *b.EstimatedPackaging, unit, pct)
	}
	cmd.Printf("%sOutcome:%s     %s\n", colorDim, colorReset, colorizeOutcome(b.Outcome))

	if b.ScheduledAt != nil {
		cmd.Printf("%sScheduled:%s   %s\n", colorDim, colorReset, b.ScheduledAt.Format(time.RFC3339))
	}
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(b.StartedAt))
	if b.StartedAt != nil && b.FinishedAt != nil {
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(b.FinishedAt),
			colorCyan, formatDuration(b.FinishedAt.Sub(*b.StartedAt)), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(b.FinishedAt))
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
