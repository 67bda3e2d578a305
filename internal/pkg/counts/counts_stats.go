//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package counts

// Stats represent the stats related to the counts of one direction (send or receive) of a series
type Stats struct {
	// DatatypeSize is the size of the datatype
	DatatypeSize int

	// MsgSizeThreshold is the message size used to differentiate small messages from large messages
	MsgSizeThreshold int

	// TotalNumCalls is the number of calls covered by the statistics
	TotalNumCalls int

	// Sum is the total count for all ranks data is sent to or received from, for a single call
	Sum int

	// Min from the entire counts, including zero
	Min int

	// NotZeroMin is the minimum but not equal to zero count, -1 if all counts are zero
	NotZeroMin int

	// Max from the entire counts
	Max int

	// SmallMsgs is the number of small message from counts, including 0-size count
	SmallMsgs int

	// SmallNotZeroMsgs is the number of small message from counts, not including 0-size counts
	SmallNotZeroMsgs int

	// LargeMsgs is the number of large messages from counts
	LargeMsgs int

	// TotalZeroCounts is the total number of zero counts
	TotalZeroCounts int

	// TotalNonZeroCounts is the total number of non-zero counts
	TotalNonZeroCounts int
}

// SendRecvStats gathers the statistics of both directions of a series
type SendRecvStats struct {
	Send Stats
	Recv Stats
}

// peerWeight is the number of peers a single element of a vector stands for
func peerWeight(commSize int, vectorLen int) int {
	if vectorLen == 1 {
		return commSize
	}
	return 1
}

func getStoreStats(st *Store, datatypeSize int, msgSizeThreshold int, numCalls int) Stats {
	stats := Stats{
		DatatypeSize:     datatypeSize,
		MsgSizeThreshold: msgSizeThreshold,
		TotalNumCalls:    numCalls,
		Min:              -1,
		NotZeroMin:       -1,
		Max:              -1,
	}

	for _, g := range st.Groups() {
		nRanks := len(g.Ranks)
		weight := peerWeight(st.CommSize(), len(g.Counts))
		for _, c := range g.Counts {
			n := nRanks * weight
			stats.Sum += c * n

			if stats.Min == -1 || c < stats.Min {
				stats.Min = c
			}
			if c > stats.Max {
				stats.Max = c
			}

			if c == 0 {
				stats.TotalZeroCounts += n
				stats.SmallMsgs += n
				continue
			}

			stats.TotalNonZeroCounts += n
			if stats.NotZeroMin == -1 || c < stats.NotZeroMin {
				stats.NotZeroMin = c
			}
			if c*datatypeSize < msgSizeThreshold {
				stats.SmallMsgs += n
				stats.SmallNotZeroMsgs += n
			} else {
				stats.LargeMsgs += n
			}
		}
	}

	return stats
}

// GetStats gathers the statistics of a series. Counts are considered small
// when the amount of data in bytes is strictly below msgSizeThreshold.
func GetStats(s *CallSeries, msgSizeThreshold int) SendRecvStats {
	var stats SendRecvStats
	stats.Send = getStoreStats(s.Send, s.SendDatatypeSize, msgSizeThreshold, len(s.Calls))
	stats.Recv = getStoreStats(s.Recv, s.RecvDatatypeSize, msgSizeThreshold, len(s.Calls))
	return stats
}

// RankSums returns, for each rank, the amount of data in bytes it exchanges
// during one call. A single-element vector applies to every peer.
func RankSums(st *Store, datatypeSize int) []int {
	sums := make([]int, st.CommSize())
	for _, g := range st.Groups() {
		total := 0
		for _, c := range g.Counts {
			total += c
		}
		total = total * peerWeight(st.CommSize(), len(g.Counts)) * datatypeSize
		for _, r := range g.Ranks {
			sums[r] = total
		}
	}
	return sums
}
