package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/hazyhaar/secop-dashboard/pkg/dashboard"
	"github.com/hazyhaar/secop-dashboard/pkg/sources"
)

func writeReport(out io.Writer, snap *dashboard.Snapshot, v dashboard.Views) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Snapshot %s loaded %s: %d raw, %d records, %d columns\n\n",
		snap.ID, snap.LoadedAt.Format(time.RFC3339), snap.RawCount, snap.Len(), len(snap.Columns))

	fmt.Fprintf(w, "Contracts per 1,000 inhabitants (population %d)\n", v.PerCapita.Year)
	fmt.Fprintln(w, "DEPARTMENT\tCONTRACTS\tPOPULATION\tPER 1000")
	for _, r := range v.PerCapita.Regions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.RegionKey, r.ContractCount, optFloat(r.Population, 0), optFloat(r.ContractsPer1000, 4))
	}
	if v.PerCapita.Unmatched > 0 {
		fmt.Fprintf(w, "(%d departments without population data)\n", v.PerCapita.Unmatched)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Population vs contracts (%d)\n", v.Correlation.Year)
	if v.CorrelationError != "" {
		fmt.Fprintf(w, "unavailable: %s\n\n", v.CorrelationError)
	} else {
		fmt.Fprintf(w, "pearson r = %.4f over %d departments\n\n", v.Correlation.Coefficient, len(v.Correlation.Pairs))
	}

	fmt.Fprintln(w, "Total value by contract type")
	fmt.Fprintln(w, "TYPE\tTOTAL")
	for _, t := range v.Totals {
		fmt.Fprintf(w, "%s\t%s\n", label(t.ContractType), t.TotalValue.StringFixed(2))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Monthly value by contract type")
	fmt.Fprintln(w, "MONTH\tTYPE\tVALUE")
	for _, b := range v.Monthly {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.YearMonth.Format("2006-01"), label(b.ContractType), b.TotalValue.StringFixed(2))
	}
	return w.Flush()
}

func writeSources(out io.Writer, list []sources.Source, loads []sources.Load) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tLAST CHECK\tLOCATION")
	for _, s := range list {
		status := "-"
		if s.LastStatus != nil {
			status = strconv.Itoa(*s.LastStatus)
		}
		if s.LastError != nil && *s.LastError != "" {
			status += " (" + *s.LastError + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Kind, status, unixTime(s.LastCheck), s.Location)
	}
	if len(loads) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "STARTED\tROWS\tERROR")
		for _, l := range loads {
			errText := ""
			if l.Error != nil {
				errText = *l.Error
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", unixTime(&l.StartedAt), l.Rows, errText)
		}
	}
	return w.Flush()
}

func optFloat(f *float64, prec int) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', prec, 64)
}

func label(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func unixTime(ts *int64) string {
	if ts == nil {
		return "never"
	}
	return time.Unix(*ts, 0).UTC().Format(time.RFC3339)
}
