//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package main

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gvallee/collective_profiler/internal/pkg/bins"
	"github.com/gvallee/collective_profiler/internal/pkg/config"
	"github.com/gvallee/collective_profiler/internal/pkg/notation"
	"github.com/gvallee/collective_profiler/internal/pkg/profiler"
	"github.com/gvallee/collective_profiler/internal/pkg/progress"
	"github.com/gvallee/collective_profiler/internal/pkg/report"
	"github.com/gvallee/collective_profiler/internal/pkg/timer"
	"github.com/gvallee/collective_profiler/pkg/counts"
	"github.com/gvallee/collective_profiler/pkg/errors"
	"github.com/gvallee/go_util/pkg/util"
	"github.com/tebeka/atexit"
)

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if !util.PathExists(path) {
		return config.Config{}, fmt.Errorf("%s does not exist", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	// Raw counts files do not include displacements
	if cfg.TrackDisplacements {
		return cfg, errors.New(errors.ErrInvalidConfig, fmt.Errorf("%s: displacements cannot be tracked from raw counts files", path))
	}
	return cfg, nil
}

// filterCalls only keeps the calls with an ID from a compressed list, e.g., 0-9,20
func filterCalls(calls []*counts.RawCall, selection string) ([]*counts.RawCall, error) {
	ids, err := notation.ConvertCompressedListToIntSlice(selection)
	if err != nil {
		return nil, fmt.Errorf("invalid list of calls %q: %w", selection, err)
	}
	selected := make(map[int]bool)
	for _, id := range ids {
		selected[id] = true
	}

	var list []*counts.RawCall
	for _, c := range calls {
		if selected[c.CallID] {
			list = append(list, c)
		}
	}
	return list, nil
}

func replayCalls(set *profiler.Set, c profiler.Collective, calls []*counts.RawCall) error {
	for _, rc := range calls {
		call := &profiler.Call{
			ID:               rc.CallID,
			CommSize:         rc.CommSize,
			SendDatatypeSize: rc.SendDatatypeSize,
			RecvDatatypeSize: rc.RecvDatatypeSize,
			SendCounts:       rc.SendCounts,
			RecvCounts:       rc.RecvCounts,
		}
		err := set.HandleCall(c, call)
		if err != nil {
			return fmt.Errorf("unable to handle call %d of lead rank %d: %w", rc.CallID, rc.LeadRank, err)
		}
	}
	return nil
}

// compactCalls replays the calls of each communicator, identified by its lead
// rank, in a separate set of profilers
func compactCalls(cfg config.Config, c profiler.Collective, calls []*counts.RawCall) ([]int, map[int]*profiler.Set, error) {
	leadRanks, callsPerLeadRank := counts.GroupByLeadRank(calls)
	sets := make(map[int]*profiler.Set)

	b := progress.NewBar(len(calls), fmt.Sprintf("Compacting %s calls", c))
	defer progress.EndBar(b)
	for _, lead := range leadRanks {
		set, err := profiler.NewSet(cfg)
		if err != nil {
			return nil, nil, err
		}
		sets[lead] = set
		err = replayCalls(set, c, callsPerLeadRank[lead])
		if err != nil {
			return nil, nil, err
		}
		b.Increment(len(callsPerLeadRank[lead]))
	}
	return leadRanks, sets, nil
}

func getLeadRankOutputDir(outputDir string, leadRank int) (string, error) {
	dir := filepath.Join(outputDir, fmt.Sprintf("rank%d", leadRank))
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", fmt.Errorf("unable to create %s: %w", dir, err)
	}
	return dir, nil
}

func saveBins(outputDir string, p *profiler.Profiler, listBins []int) error {
	for idx, s := range p.Counts().Series() {
		b := bins.GetFromSeries(s, bins.Create(listBins))
		err := bins.Save(outputDir, p.Collective().String(), idx, b)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveResults(outputDir string, leadRank int, set *profiler.Set, html bool, listBins []int) error {
	dir, err := getLeadRankOutputDir(outputDir, leadRank)
	if err != nil {
		return err
	}

	for _, collective := range set.Collectives() {
		p, err := set.Get(collective)
		if err != nil {
			return err
		}
		files, err := report.Save(dir, p)
		if err != nil {
			return fmt.Errorf("unable to save results: %w", err)
		}
		if html {
			for _, f := range files {
				htmlFile, err := report.ConvertFile(f)
				if err != nil {
					return err
				}
				files = append(files, htmlFile)
			}
		}
		if listBins != nil {
			err = saveBins(dir, p, listBins)
			if err != nil {
				return fmt.Errorf("unable to save bins: %w", err)
			}
		}
		fmt.Printf("%s (lead rank %d): %d calls in %d series\n", collective, leadRank, p.ProfiledCalls(), p.Counts().NumSeries())
		for _, f := range files {
			fmt.Printf("-> %s\n", f)
		}
	}
	return nil
}

func logMetrics(set *profiler.Set) {
	families, err := set.Gatherer().Gather()
	if err != nil {
		log.Printf("unable to gather metrics: %s", err)
		return
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			value := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				value = m.GetGauge().GetValue()
			}
			log.Printf("%s{%s} %.0f", f.GetName(), strings.Join(labels, ","), value)
		}
	}
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose mode")
	dir := flag.String("dir", "", "Where all the raw counts files (counts.rankN_callM.md) are")
	outputDir := flag.String("output-dir", "", "Where to store the results (default: same directory as the raw counts files)")
	collectiveName := flag.String("collective", "alltoallv", "Collective the counts are from: alltoall, alltoallv or allgatherv")
	configFile := flag.String("config", "", "YAML file specifying the analyses to perform")
	callSelection := flag.String("calls", "", "Compressed list of the calls to compact, e.g., 0-9,20 (default: all calls)")
	binThresholds := flag.String("bins", "", "Comma-separated list of thresholds to use for the creation of bins, e.g., 200,1024,2048,4096")
	html := flag.Bool("html", false, "Also generate the HTML version of the results")
	help := flag.Bool("h", false, "Help message")

	flag.Parse()

	cmdName := filepath.Base(os.Args[0])
	if *help {
		fmt.Printf("%s compacts the counts of collective calls, detects patterns and groups ranks based on the amount of data they exchange", cmdName)
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	logFile := util.OpenLogFile("collective_profiler", cmdName)
	atexit.Register(func() {
		logFile.Close()
	})
	if *verbose {
		nultiWriters := io.MultiWriter(os.Stdout, logFile)
		log.SetOutput(nultiWriters)
	} else {
		log.SetOutput(ioutil.Discard)
	}

	if *dir == "" || !util.PathExists(*dir) {
		fmt.Printf("ERROR: invalid input directory: %q\n", *dir)
		atexit.Exit(1)
	}
	if *outputDir == "" {
		*outputDir = *dir
	}
	if !util.PathExists(*outputDir) {
		fmt.Printf("ERROR: %s does not exist\n", *outputDir)
		atexit.Exit(1)
	}

	c, err := profiler.ParseCollective(*collectiveName)
	if err != nil {
		atexit.Fatalf("ERROR: %s", err)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		atexit.Fatalf("ERROR: unable to load configuration: %s", err)
	}

	var listBins []int
	if *binThresholds != "" {
		listBins, err = bins.GetFromInputDescr(*binThresholds)
		if err != nil {
			atexit.Fatalf("ERROR: %s", err)
		}
	}

	totalNumSteps := 3
	currentStep := 1
	fmt.Printf("* Step %d/%d: loading raw counts...\n", currentStep, totalNumSteps)
	t := timer.Start()
	calls, err := counts.LoadCallsFromDir(*dir)
	duration := t.Stop()
	if err != nil {
		atexit.Fatalf("ERROR: unable to load raw counts: %s", err)
	}
	if *callSelection != "" {
		calls, err = filterCalls(calls, *callSelection)
		if err != nil {
			atexit.Fatalf("ERROR: %s", err)
		}
	}
	fmt.Printf("Step completed in %s\n", duration)
	currentStep++

	fmt.Printf("\n* Step %d/%d: compacting %d calls...\n", currentStep, totalNumSteps, len(calls))
	t = timer.Start()
	leadRanks, sets, err := compactCalls(cfg, c, calls)
	duration = t.Stop()
	if err != nil {
		atexit.Fatalf("ERROR: %s", err)
	}
	for _, lead := range leadRanks {
		atexit.Register(sets[lead].Release)
	}
	fmt.Printf("Step completed in %s\n", duration)
	currentStep++

	fmt.Printf("\n* Step %d/%d: saving results...\n", currentStep, totalNumSteps)
	t = timer.Start()
	for _, lead := range leadRanks {
		err = saveResults(*outputDir, lead, sets[lead], *html, listBins)
		if err != nil {
			atexit.Fatalf("ERROR: %s", err)
		}
		logMetrics(sets[lead])
	}
	duration = t.Stop()
	fmt.Printf("Step completed in %s\n", duration)

	atexit.Exit(0)
}
