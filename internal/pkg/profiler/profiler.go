//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package profiler

import (
	"fmt"
	"log"
	"strings"

	"github.com/gvallee/collective_profiler/internal/pkg/config"
	"github.com/gvallee/collective_profiler/internal/pkg/counts"
	"github.com/gvallee/collective_profiler/internal/pkg/grouping"
	"github.com/gvallee/collective_profiler/internal/pkg/patterns"
	"github.com/gvallee/collective_profiler/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Collective is the kind of collective operation being profiled
type Collective int

const (
	// Alltoall is a collective where all the ranks send the same amount of data to all other ranks
	Alltoall Collective = iota

	// Alltoallv is a collective where each rank sends a specific amount of data to each other rank
	Alltoallv

	// Allgatherv is a collective where each rank contributes a specific amount of data gathered by all the ranks
	Allgatherv
)

var collectiveNames = map[Collective]string{
	Alltoall:   "alltoall",
	Alltoallv:  "alltoallv",
	Allgatherv: "allgatherv",
}

// Collectives is the list of all the collectives that can be profiled
var Collectives = []Collective{Alltoall, Alltoallv, Allgatherv}

func (c Collective) String() string {
	if name, ok := collectiveNames[c]; ok {
		return name
	}
	return fmt.Sprintf("collective(%d)", int(c))
}

// ParseCollective returns the collective associated to a name, e.g., alltoallv
func ParseCollective(name string) (Collective, error) {
	for c, n := range collectiveNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return -1, errors.New(errors.ErrInvalidInput, fmt.Errorf("unknown collective: %s", name))
}

// Call is the data of a collective call, as captured on the root of the communicator
type Call struct {
	// ID is the call number (zero-indexed)
	ID int

	// CommSize is the size of the communicator used for the call
	CommSize int

	// SendDatatypeSize is the size in bytes of the datatype used to send data
	SendDatatypeSize int

	// RecvDatatypeSize is the size in bytes of the datatype used to receive data
	RecvDatatypeSize int

	// SendCounts is the send counts of every rank, either one count per peer or a single count for all peers
	SendCounts [][]int

	// RecvCounts is the receive counts of every rank
	RecvCounts [][]int

	// SendDispls is the send displacements of every rank, optional
	SendDispls [][]int

	// RecvDispls is the receive displacements of every rank, optional
	RecvDispls [][]int
}

// Clusters is the result of grouping the ranks of a series based on the
// amount of data they send and receive
type Clusters struct {
	Send []*grouping.Group
	Recv []*grouping.Group

	// SendValues and RecvValues are the values, in bytes, used to group each rank
	SendValues []int
	RecvValues []int
}

// Profiler gathers all the data of a given collective
type Profiler struct {
	collective Collective
	cfg        config.Config

	counts   *counts.Registry
	displs   *counts.Registry
	patterns *patterns.Histogram
	clusters map[int]*Clusters
	metrics  *metrics

	totalCalls        int
	profiledCalls     int
	firstProfiledCall int
}

// New creates a profiler for a collective
func New(c Collective, cfg config.Config) (*Profiler, error) {
	if _, ok := collectiveNames[c]; !ok {
		return nil, errors.New(errors.ErrInvalidInput, fmt.Errorf("unknown collective: %d", int(c)))
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	p := new(Profiler)
	p.collective = c
	p.cfg = cfg
	p.init()
	return p, nil
}

func (p *Profiler) init() {
	p.counts = counts.NewRegistry()
	if p.cfg.TrackDisplacements {
		p.displs = counts.NewRegistry()
	}
	if p.cfg.PatternDetection {
		mode := patterns.Global
		if p.cfg.PerCallPatterns {
			mode = patterns.PerCall
		}
		p.patterns = patterns.NewHistogram(mode, p.cfg.SizeScopedPatterns)
	}
	if p.cfg.ClusteringEnabled {
		p.clusters = make(map[int]*Clusters)
	}
	p.firstProfiledCall = -1
}

// needProfile checks whether the current call is within the profiling window
func (p *Profiler) needProfile() bool {
	if p.totalCalls < p.cfg.StartCall {
		return false
	}
	if p.cfg.CallLimit != config.NoCallLimit && p.profiledCalls >= p.cfg.CallLimit {
		return false
	}
	return true
}

func (p *Profiler) clusterRanks(values []int) ([]*grouping.Group, error) {
	e, err := grouping.NewEngine(p.cfg.BalanceTolerance)
	if err != nil {
		return nil, err
	}
	defer e.Release()

	for rank, v := range values {
		err := e.AddDatapoint(rank, v)
		if err != nil {
			return nil, err
		}
	}
	return e.GetGroups(), nil
}

func (p *Profiler) clusterSeries(seriesIdx int) error {
	s := p.counts.Series()[seriesIdx]
	c := new(Clusters)
	c.SendValues = counts.RankSums(s.Send, s.SendDatatypeSize)
	c.RecvValues = counts.RankSums(s.Recv, s.RecvDatatypeSize)

	var err error
	c.Send, err = p.clusterRanks(c.SendValues)
	if err != nil {
		return fmt.Errorf("unable to group ranks based on send data: %w", err)
	}
	c.Recv, err = p.clusterRanks(c.RecvValues)
	if err != nil {
		return fmt.Errorf("unable to group ranks based on recv data: %w", err)
	}

	log.Printf("Series %d: %d send groups and %d recv groups", seriesIdx, len(c.Send), len(c.Recv))
	p.clusters[seriesIdx] = c
	p.metrics.groupsCreated(p.collective, c)
	return nil
}

func checkDispls(call *Call) error {
	if call.SendDispls == nil || call.RecvDispls == nil {
		return errors.New(errors.ErrInvalidInput, fmt.Errorf("call %d does not have any displacements", call.ID))
	}
	return counts.CheckCallData(call.CommSize, call.SendDispls, call.RecvDispls)
}

// HandleCall records the data of a call. Calls outside of the profiling
// window are only counted.
func (p *Profiler) HandleCall(call *Call) error {
	if call == nil {
		return errors.New(errors.ErrInvalidInput, fmt.Errorf("undefined call"))
	}

	if !p.needProfile() {
		log.Printf("%s call %d is not profiled", p.collective, call.ID)
		p.totalCalls++
		p.metrics.callHandled(p.collective, false)
		return nil
	}

	// Everything is checked before any data is recorded
	err := counts.CheckCallData(call.CommSize, call.SendCounts, call.RecvCounts)
	if err != nil {
		return fmt.Errorf("invalid counts for %s call %d: %w", p.collective, call.ID, err)
	}
	if p.displs != nil {
		err = checkDispls(call)
		if err != nil {
			return fmt.Errorf("invalid displacements for %s call %d: %w", p.collective, call.ID, err)
		}
	}

	numSeries := p.counts.NumSeries()
	seriesIdx, err := p.counts.Record(call.ID, call.CommSize, call.SendDatatypeSize, call.RecvDatatypeSize, call.SendCounts, call.RecvCounts)
	if err != nil {
		return err
	}

	if p.displs != nil {
		_, err = p.displs.Record(call.ID, call.CommSize, call.SendDatatypeSize, call.RecvDatatypeSize, call.SendDispls, call.RecvDispls)
		if err != nil {
			return err
		}
	}

	if p.patterns != nil {
		err = p.patterns.Observe(call.ID, call.SendCounts, call.RecvCounts, call.CommSize)
		if err != nil {
			return err
		}
	}

	if p.clusters != nil && p.counts.NumSeries() > numSeries {
		err = p.clusterSeries(seriesIdx)
		if err != nil {
			return err
		}
	}

	if p.firstProfiledCall == -1 {
		p.firstProfiledCall = call.ID
	}
	p.totalCalls++
	p.profiledCalls++
	p.metrics.callHandled(p.collective, true)
	p.metrics.setSeries(p.collective, registryCounts, p.counts.NumSeries())
	if p.displs != nil {
		p.metrics.setSeries(p.collective, registryDispls, p.displs.NumSeries())
	}
	return nil
}

// Collective returns the collective the profiler is for
func (p *Profiler) Collective() Collective {
	return p.collective
}

// Config returns the configuration of the profiler
func (p *Profiler) Config() config.Config {
	return p.cfg
}

// Counts returns the registry of the counts
func (p *Profiler) Counts() *counts.Registry {
	return p.counts
}

// Displs returns the registry of the displacements, nil when displacements are not tracked
func (p *Profiler) Displs() *counts.Registry {
	return p.displs
}

// Patterns returns the patterns, nil when pattern detection is not enabled
func (p *Profiler) Patterns() *patterns.Histogram {
	return p.patterns
}

// Clusters returns the groups of ranks of a series, if clustering is enabled
func (p *Profiler) Clusters(seriesIdx int) (*Clusters, bool) {
	if p.clusters == nil {
		return nil, false
	}
	c, ok := p.clusters[seriesIdx]
	return c, ok
}

// TotalCalls returns the number of calls, profiled or not
func (p *Profiler) TotalCalls() int {
	return p.totalCalls
}

// ProfiledCalls returns the number of calls that have been recorded
func (p *Profiler) ProfiledCalls() int {
	return p.profiledCalls
}

// FirstProfiledCall returns the ID of the first call that was recorded, -1 if none
func (p *Profiler) FirstProfiledCall() int {
	return p.firstProfiledCall
}

// Release frees all the data of the profiler, which can then be reused
func (p *Profiler) Release() {
	if p.counts != nil {
		p.counts.Release()
	}
	if p.displs != nil {
		p.displs.Release()
	}
	if p.patterns != nil {
		p.patterns.Release()
	}
	p.clusters = nil
	p.init()
	p.totalCalls = 0
	p.profiledCalls = 0
}

// Set gathers the profilers of all the collectives, created when the first
// call of a collective is handled
type Set struct {
	cfg       config.Config
	profilers map[Collective]*Profiler
	registry  *prometheus.Registry
	metrics   *metrics
}

// NewSet creates an empty set of profilers sharing the same configuration
func NewSet(cfg config.Config) (*Set, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	s := new(Set)
	s.cfg = cfg
	s.profilers = make(map[Collective]*Profiler)
	s.registry = prometheus.NewRegistry()
	s.metrics = newMetrics(s.registry)
	return s, nil
}

// Get returns the profiler of a collective, creating it if necessary
func (s *Set) Get(c Collective) (*Profiler, error) {
	if p, ok := s.profilers[c]; ok {
		return p, nil
	}
	p, err := New(c, s.cfg)
	if err != nil {
		return nil, err
	}
	p.metrics = s.metrics
	s.profilers[c] = p
	return p, nil
}

// HandleCall records a call of a collective
func (s *Set) HandleCall(c Collective, call *Call) error {
	p, err := s.Get(c)
	if err != nil {
		return err
	}
	return p.HandleCall(call)
}

// Collectives returns the collectives with a profiler, in a fixed order
func (s *Set) Collectives() []Collective {
	var list []Collective
	for _, c := range Collectives {
		if _, ok := s.profilers[c]; ok {
			list = append(list, c)
		}
	}
	return list
}

// Gatherer gives access to the metrics of all the profilers of the set
func (s *Set) Gatherer() prometheus.Gatherer {
	return s.registry
}

// Release frees the data of all the profilers
func (s *Set) Release() {
	for _, p := range s.profilers {
		p.Release()
	}
	s.profilers = make(map[Collective]*Profiler)
	s.metrics.reset()
}
