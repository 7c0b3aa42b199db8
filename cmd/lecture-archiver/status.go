package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/internal/boltdb"
	"github.com/alanbriolat/lecture-archiver/internal/history"
	"github.com/alanbriolat/lecture-archiver/internal/process"
)

// statusAction prints the stored per-item outcomes grouped by course, followed by the last run of each course given
// as an argument.
func statusAction(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	if rt.config.StateDB != "" {
		if _, err := rt.fs.Stat(rt.config.StateDB); err == nil {
			state, err := boltdb.New(rt.config.StateDB, rt.logger)
			if err != nil {
				return err
			}
			items, err := state.ListItems()
			_ = state.Close()
			if err != nil {
				return err
			}
			printItems(w, items)
		}
	}

	if c.NArg() == 0 || rt.config.HistoryDB == "" {
		return nil
	}
	h, err := history.Open(rt.config.HistoryDB, rt.logger)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "COURSE\tLAST RUN\tPROCESSED\tVALIDATED\tFAILED\tTRANSFERRED\tFOLDER")
	for _, arg := range c.Args().Slice() {
		course, err := la.ParseCourseID(arg)
		if err != nil {
			return err
		}
		run, err := h.LastCourseRun(course.String())
		if err != nil {
			return err
		}
		if run == nil {
			_, _ = fmt.Fprintf(w, "%s\tnever\t\t\t\t\t\n", course)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			course,
			humanize.Time(run.StartedAt.Add(run.Duration)),
			run.Processed,
			run.Validated,
			run.Failed,
			humanize.IBytes(uint64(run.Transferred)),
			humanize.IBytes(uint64(run.FolderSize)),
		)
	}
	return nil
}

func printItems(w *tabwriter.Writer, items []process.ItemRecord) {
	type courseCounts struct {
		counts  map[process.Terminal]int
		updated time.Time
	}
	byCourse := make(map[string]*courseCounts)
	for _, item := range items {
		cc, ok := byCourse[item.Course]
		if !ok {
			cc = &courseCounts{counts: make(map[process.Terminal]int)}
			byCourse[item.Course] = cc
		}
		cc.counts[item.Terminal]++
		if item.UpdatedAt.After(cc.updated) {
			cc.updated = item.UpdatedAt
		}
	}
	courses := make([]string, 0, len(byCourse))
	for course := range byCourse {
		courses = append(courses, course)
	}
	sort.Strings(courses)

	_, _ = fmt.Fprintln(w, "COURSE\tVALIDATED\tFAILED VALIDATION\tDOWNLOAD FAILED\tUPDATED")
	for _, course := range courses {
		cc := byCourse[course]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
			course,
			cc.counts[process.Validated],
			cc.counts[process.FailedValidation],
			cc.counts[process.DownloadFailed],
			humanize.Time(cc.updated),
		)
	}
}
