package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the kind of notable moment a BookmarkDetector
// flags.
type BookmarkType string

const (
	BookmarkPredationSurge   BookmarkType = "predation_surge"
	BookmarkPopulationBoom   BookmarkType = "population_boom"
	BookmarkPopulationCrash  BookmarkType = "population_crash"
	BookmarkStablePopulation BookmarkType = "stable_population"
)

// Thresholds for bookmark detection. The teacher reads these from a
// per-bookmark-type config section; this spec has no equivalent
// tunable, so they're named constants instead.
const (
	killRateSurgeMultiplier = 2.0
	minKillsForSurge        = 3
	crashDropFraction       = 0.3
	minCrashDrop            = 5
	stableCVThreshold       = 0.02
	stableWindowsRequired   = 5
)

// Bookmark represents an automatically triggered notable moment.
type Bookmark struct {
	Type        BookmarkType
	Step        uint64
	Description string
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark", "type", string(b.Type), "step", b.Step, "description", b.Description)
}

// BookmarkDetector watches a stream of WindowStats for notable moments:
// predation surges, population booms/crashes, and stretches of stable
// population, mirroring the teacher's BookmarkDetector but scored off
// this domain's single population rather than separate prey/predator
// counts.
type BookmarkDetector struct {
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentPeak    int
	stableWindows int
}

// NewBookmarkDetector creates a detector keeping the last historySize
// windows (minimum 5, the span the stable-population check needs).
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest window and returns any bookmarks it
// triggers, updating the detector's rolling history.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkPredationSurge(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkPopulationCrash(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkStablePopulation(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}
	if stats.ReproductionAttempts > 0 && stats.ReproductionAttempts >= 2*stats.ReproductionsCapped+stats.EntityCount {
		bookmarks = append(bookmarks, Bookmark{
			Type:        BookmarkPopulationBoom,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("%d reproduction attempts against a population of %d", stats.ReproductionAttempts, stats.EntityCount),
		})
	}

	bd.addToHistory(stats)
	if stats.EntityCount > bd.recentPeak {
		bd.recentPeak = stats.EntityCount
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkPredationSurge(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 || stats.PredationAttempts == 0 {
		return nil
	}

	var totalKills, totalAttempts int
	for _, h := range history {
		totalKills += h.PredationKills
		totalAttempts += h.PredationAttempts
	}
	if totalAttempts == 0 {
		return nil
	}
	avgRate := float64(totalKills) / float64(totalAttempts)
	if avgRate == 0 {
		return nil
	}

	currentRate := float64(stats.PredationKills) / float64(stats.PredationAttempts)
	if currentRate > avgRate*killRateSurgeMultiplier && stats.PredationKills >= minKillsForSurge {
		return &Bookmark{
			Type:        BookmarkPredationSurge,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("predation kill rate %.2f is %.1fx the rolling average (%.2f)", currentRate, currentRate/avgRate, avgRate),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkPopulationCrash(stats WindowStats) *Bookmark {
	if bd.recentPeak == 0 {
		return nil
	}
	drop := 1.0 - float64(stats.EntityCount)/float64(bd.recentPeak)
	if drop > crashDropFraction && stats.EntityCount < bd.recentPeak-minCrashDrop {
		oldPeak := bd.recentPeak
		bd.recentPeak = stats.EntityCount
		return &Bookmark{
			Type:        BookmarkPopulationCrash,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("population crashed %.0f%% from peak %d to %d", drop*100, oldPeak, stats.EntityCount),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkStablePopulation(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < stableWindowsRequired {
		return nil
	}
	recent := history[len(history)-stableWindowsRequired:]

	var sum float64
	for _, h := range recent {
		sum += float64(h.EntityCount)
	}
	mean := sum / float64(len(recent))
	if mean == 0 {
		bd.stableWindows = 0
		return nil
	}

	var variance float64
	for _, h := range recent {
		d := float64(h.EntityCount) - mean
		variance += d * d
	}
	variance /= float64(len(recent))
	cv := variance / (mean * mean)

	if cv < stableCVThreshold {
		bd.stableWindows++
	} else {
		bd.stableWindows = 0
	}

	if bd.stableWindows == stableWindowsRequired {
		return &Bookmark{
			Type:        BookmarkStablePopulation,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("population stable near %d over %d+ windows", stats.EntityCount, stableWindowsRequired),
		}
	}
	return nil
}
