package shard

import "math"

// Distribution describes how records are spread over the shards of an entity type.
type Distribution struct {
	Counts []int   // records per shard index
	Total  int     // number of records
	Mean   float64 // records per shard
	StdDev float64 // population standard deviation of Counts
	Min    int
	Max    int
	Empty  int // shards without a record

	// Quality is 1 for a perfectly even spread and 0 when one shard holds everything.
	// It averages 1-min(1, StdDev/Mean) and Min/Max.
	Quality float64
}

// NewDistribution places every id on shard id mod shardCount and rates the result.
// A shardCount below 1 yields the zero Distribution.
func NewDistribution(ids []uint64, shardCount int) Distribution {
	if shardCount < 1 {
		return Distribution{}
	}

	d := Distribution{Counts: make([]int, shardCount), Total: len(ids)}
	for _, id := range ids {
		d.Counts[id%uint64(shardCount)]++
	}

	d.Min, d.Max = d.Counts[0], d.Counts[0]
	for _, c := range d.Counts {
		d.Min, d.Max = min(d.Min, c), max(d.Max, c)
		if c == 0 {
			d.Empty++
		}
	}
	d.Mean = float64(d.Total) / float64(shardCount)

	var squares float64
	for _, c := range d.Counts {
		squares += (float64(c) - d.Mean) * (float64(c) - d.Mean)
	}
	d.StdDev = math.Sqrt(squares / float64(shardCount))

	if d.Total == 0 {
		d.Quality = 1
		return d
	}
	cv := d.StdDev / d.Mean
	d.Quality = (1-math.Min(1, cv))*0.5 + float64(d.Min)/float64(d.Max)*0.5
	return d
}
