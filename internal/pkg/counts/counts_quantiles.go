//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package counts

import (
	"fmt"

	tdigest "github.com/caio/go-tdigest/v4"
	"github.com/gvallee/collective_profiler/pkg/errors"
)

const digestCompression = 100

// VolumeQuantiles summarizes how much data the ranks of a series exchange
type VolumeQuantiles struct {
	Median float64
	P90    float64
	P99    float64
}

// GetVolumeQuantiles computes the quantiles of the amount of data of each
// rank, e.g., as returned by RankSums. Results are estimates once the number
// of ranks is larger than the compression of the digest.
func GetVolumeQuantiles(volumes []int) (VolumeQuantiles, error) {
	var q VolumeQuantiles
	if len(volumes) == 0 {
		return q, errors.New(errors.ErrInvalidInput, fmt.Errorf("no volume"))
	}

	td, err := tdigest.New(tdigest.Compression(digestCompression))
	if err != nil {
		return q, err
	}
	for _, v := range volumes {
		err = td.Add(float64(v))
		if err != nil {
			return q, fmt.Errorf("unable to add %d to the digest: %w", v, err)
		}
	}

	q.Median = td.Quantile(0.5)
	q.P90 = td.Quantile(0.9)
	q.P99 = td.Quantile(0.99)
	return q, nil
}
