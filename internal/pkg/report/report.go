//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package report

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gvallee/collective_profiler/internal/pkg/counts"
	"github.com/gvallee/collective_profiler/internal/pkg/format"
	"github.com/gvallee/collective_profiler/internal/pkg/grouping"
	"github.com/gvallee/collective_profiler/internal/pkg/notation"
	"github.com/gvallee/collective_profiler/internal/pkg/patterns"
	"github.com/gvallee/collective_profiler/internal/pkg/profiler"
	"github.com/gvallee/collective_profiler/internal/pkg/unit"
)

const (
	// RankListPrefix is the prefix of the list of ranks sharing a vector
	RankListPrefix = "Rank(s) "
)

func writeVectors(w io.Writer, st *counts.Store) error {
	for _, g := range st.Groups() {
		_, err := fmt.Fprintf(w, "%s%s: %s\n", RankListPrefix, notation.CompressIntArray(g.Ranks), g.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func writeStats(w io.Writer, ctx string, s counts.Stats) error {
	_, err := fmt.Fprintf(w, "%s: sum = %d; min = %d; non-zero min = %d; max = %d; zero counts = %d; small messages = %d (%d not zero); large messages = %d (threshold: %d bytes)\n\n",
		ctx, s.Sum, s.Min, s.NotZeroMin, s.Max, s.TotalZeroCounts, s.SmallMsgs, s.SmallNotZeroMsgs, s.LargeMsgs, s.MsgSizeThreshold)
	return err
}

// WriteRegistry writes all the series of a registry using the compact
// notation: each distinct vector is written once with the list of ranks that
// provided it
func WriteRegistry(w io.Writer, title string, reg *counts.Registry, msgSizeThreshold int) error {
	return writeRegistry(w, title, reg, msgSizeThreshold, true)
}

// WriteDisplacements writes a registry of displacements. Displacements are
// offsets, not message sizes, so no statistics are included.
func WriteDisplacements(w io.Writer, title string, reg *counts.Registry) error {
	return writeRegistry(w, title, reg, 0, false)
}

func writeRegistry(w io.Writer, title string, reg *counts.Registry, msgSizeThreshold int, withStats bool) error {
	_, err := fmt.Fprintf(w, "# %s\n\nTotal number of calls: %d\nNumber of unique series: %d\n\n", title, reg.NumCalls(), reg.NumSeries())
	if err != nil {
		return err
	}

	for idx, s := range reg.Series() {
		_, err = fmt.Fprintf(w, "## Series #%d (%d/%d calls)\n\n", idx, len(s.Calls), reg.NumCalls())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "Calls: %s\nComm size: %d\nSend datatype size: %d\nRecv datatype size: %d\n", notation.CompressIntArray(s.Calls), s.CommSize, s.SendDatatypeSize, s.RecvDatatypeSize)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "Unique send vectors: %d (compression ratio: %.2f)\nUnique recv vectors: %d (compression ratio: %.2f)\n\n",
			s.Send.NumGroups(), s.Send.CompressionRatio(), s.Recv.NumGroups(), s.Recv.CompressionRatio())
		if err != nil {
			return err
		}

		if withStats {
			stats := counts.GetStats(s, msgSizeThreshold)
			err = writeStats(w, "Send", stats.Send)
			if err != nil {
				return err
			}
			err = writeStats(w, "Recv", stats.Recv)
			if err != nil {
				return err
			}
		}

		_, err = fmt.Fprintf(w, "### Send\n\n")
		if err != nil {
			return err
		}
		err = writeVectors(w, s.Send)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "\n### Recv\n\n")
		if err != nil {
			return err
		}
		err = writeVectors(w, s.Recv)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "\n")
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntries(w io.Writer, entries []*patterns.Entry, verb string, withNumCalls bool) error {
	for _, e := range entries {
		str := fmt.Sprintf("%d ranks %s %d other ranks", e.NumRanks, verb, e.NumPeers)
		if e.CommSize != -1 {
			str += fmt.Sprintf(" (communicator size: %d)", e.CommSize)
		}
		if withNumCalls {
			str += fmt.Sprintf(": %d calls", e.NumCalls)
		}
		_, err := fmt.Fprintf(w, "%s\n\n", str)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeCallPattern(w io.Writer, collective string, num int, totalNumCalls int, cp *patterns.CallPattern) error {
	_, err := fmt.Fprintf(w, "## Pattern #%d (%d/%d %s calls)\n\n", num, cp.Count, totalNumCalls, collective)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s calls: %s\n\n", strings.Title(collective), notation.CompressIntArray(cp.Calls))
	if err != nil {
		return err
	}
	if len(cp.Send) == 0 && len(cp.Recv) == 0 {
		_, err = fmt.Fprintf(w, "No data exchanged\n\n")
		return err
	}
	err = writeEntries(w, cp.Send, "sent to", false)
	if err != nil {
		return err
	}
	return writeEntries(w, cp.Recv, "recv'd from", false)
}

func writeSummarySection(w io.Writer, collective string, title string, list []*patterns.CallPattern, totalNumCalls int) error {
	if len(list) == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w, "# %s\n\n", title)
	if err != nil {
		return err
	}
	for num, cp := range list {
		err = writeCallPattern(w, collective, num, totalNumCalls, cp)
		if err != nil {
			return err
		}
	}
	return nil
}

// WritePatterns writes the patterns detected for a collective and their summary
func WritePatterns(w io.Writer, collective string, h *patterns.Histogram) error {
	_, err := fmt.Fprintf(w, "# Patterns\n\nMode: %s\nNumber of calls: %d\n\n", h.Mode(), h.NumCalls())
	if err != nil {
		return err
	}

	if h.Mode() == patterns.Global {
		_, err = fmt.Fprintf(w, "## Send\n\n")
		if err != nil {
			return err
		}
		err = writeEntries(w, h.Send(), "sent to", true)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "## Recv\n\n")
		if err != nil {
			return err
		}
		err = writeEntries(w, h.Recv(), "recv'd from", true)
		if err != nil {
			return err
		}
	} else {
		for num, cp := range h.CallPatterns() {
			err = writeCallPattern(w, collective, num, h.NumCalls(), cp)
			if err != nil {
				return err
			}
		}
	}

	s := h.Summarize()
	if patterns.NoSummary(s) && len(s.Empty) == 0 {
		_, err = fmt.Fprintf(w, "Nothing special detected; no summary\n")
		return err
	}
	err = writeSummarySection(w, collective, "1 to N patterns", s.OneToN, h.NumCalls())
	if err != nil {
		return err
	}
	err = writeSummarySection(w, collective, "N to 1 patterns", s.NToOne, h.NumCalls())
	if err != nil {
		return err
	}
	err = writeSummarySection(w, collective, "N to n patterns", s.NToN, h.NumCalls())
	if err != nil {
		return err
	}
	return writeSummarySection(w, collective, "Empty patterns", s.Empty, h.NumCalls())
}

func writeGroups(w io.Writer, ctx string, gps []*grouping.Group, values []int) error {
	_, err := fmt.Fprintf(w, "### %s\n\n", ctx)
	if err != nil {
		return err
	}
	q, err := counts.GetVolumeQuantiles(values)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Data per rank: median = %s; p90 = %s; p99 = %s\n\n", unit.Bytes(int(math.Round(q.Median))), unit.Bytes(int(math.Round(q.P90))), unit.Bytes(int(math.Round(q.P99))))
	if err != nil {
		return err
	}
	for num, g := range gps {
		ranks := append([]int{}, g.Elts...)
		sort.Ints(ranks)
		_, err = fmt.Fprintf(w, "Group #%d: %s%s (%d ranks, %d-%d bytes, mean: %.2f, total: %s)\n\n", num, RankListPrefix, notation.CompressIntArray(ranks), len(g.Elts), g.Min, g.Max, float64(g.CachedSum)/float64(len(g.Elts)), unit.Bytes(g.CachedSum))
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteGroups writes the groups of ranks of all the series of a profiler
func WriteGroups(w io.Writer, p *profiler.Profiler) error {
	_, err := fmt.Fprintf(w, "# Groups of ranks\n\nMaximum mean/median deviation: %.2f\n\n", p.Config().BalanceTolerance)
	if err != nil {
		return err
	}
	for idx, s := range p.Counts().Series() {
		c, ok := p.Clusters(idx)
		if !ok {
			continue
		}
		_, err = fmt.Fprintf(w, "## Series #%d (calls: %s)\n\n", idx, notation.CompressIntArray(s.Calls))
		if err != nil {
			return err
		}
		err = writeGroups(w, "Send", c.Send, c.SendValues)
		if err != nil {
			return err
		}
		err = writeGroups(w, "Recv", c.Recv, c.RecvValues)
		if err != nil {
			return err
		}
	}
	return nil
}

// ToHTML converts a markdown document to HTML
func ToHTML(md []byte) []byte {
	return markdown.ToHTML(md, nil, nil)
}

// ConvertFile creates the HTML version of a markdown file, next to it
func ConvertFile(mdPath string) (string, error) {
	mdContent, err := ioutil.ReadFile(mdPath)
	if err != nil {
		return "", fmt.Errorf("unable to load %s: %w", mdPath, err)
	}
	htmlPath := strings.TrimSuffix(mdPath, filepath.Ext(mdPath)) + ".html"
	err = ioutil.WriteFile(htmlPath, ToHTML(mdContent), 0644)
	if err != nil {
		return "", fmt.Errorf("unable to create %s: %w", htmlPath, err)
	}
	return htmlPath, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", path, err)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("unable to close %s: %w", path, closeErr)
		}
	}()

	err = write(f)
	if err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return nil
}

// Save writes all the data of a profiler into markdown files in a directory
// and returns the list of files that were created
func Save(dir string, p *profiler.Profiler) ([]string, error) {
	collective := p.Collective().String()
	threshold := p.Config().MsgSizeThreshold
	var files []string

	countsFile := filepath.Join(dir, collective+format.CountsFileSuffix)
	err := writeFile(countsFile, func(w io.Writer) error {
		err := WriteRegistry(w, strings.Title(collective)+" counts", p.Counts(), threshold)
		if err != nil {
			return err
		}
		if p.Displs() != nil {
			return WriteDisplacements(w, strings.Title(collective)+" displacements", p.Displs())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	files = append(files, countsFile)

	if p.Patterns() != nil {
		patternsFile := filepath.Join(dir, collective+format.PatternsFileSuffix)
		err = writeFile(patternsFile, func(w io.Writer) error {
			return WritePatterns(w, collective, p.Patterns())
		})
		if err != nil {
			return nil, err
		}
		files = append(files, patternsFile)
	}

	if p.Config().ClusteringEnabled {
		groupsFile := filepath.Join(dir, collective+format.GroupsFileSuffix)
		err = writeFile(groupsFile, func(w io.Writer) error {
			return WriteGroups(w, p)
		})
		if err != nil {
			return nil, err
		}
		files = append(files, groupsFile)
	}

	log.Printf("Created %s", strings.Join(files, ", "))
	return files, nil
}
