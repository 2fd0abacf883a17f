package parser

import (
	"io"
	"time"

	"github.com/activecm/rita-pdns/pkg/record"
)

//AggregationResult holds the deltas accumulated from one log stream
type AggregationResult struct {
	Deltas         map[record.Key]*record.Delta
	TotalRecords   uint64
	SkippedRecords uint64
	Duration       time.Duration

	order []record.Key
}

//Ordered returns the deltas in the order their keys were first seen
func (a *AggregationResult) Ordered() []*record.Delta {
	deltas := make([]*record.Delta, 0, len(a.order))
	for _, key := range a.order {
		deltas = append(deltas, a.Deltas[key])
	}
	return deltas
}

//Aggregate folds every Observation of src into one Delta per
//(query, type, answer). Counts add up, the TTL and timestamp of the latest
//occurrence in stream order win.
func Aggregate(src ObservationReader) (*AggregationResult, error) {
	start := time.Now()
	result := &AggregationResult{
		Deltas: make(map[record.Key]*record.Delta),
	}

	for {
		obs, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		for _, answer := range obs.Answers {
			key := record.Key{Query: obs.Query, Type: obs.QType, Answer: answer.Answer}
			delta, ok := result.Deltas[key]
			if !ok {
				delta = &record.Delta{Key: key}
				result.Deltas[key] = delta
				result.order = append(result.order, key)
			}
			delta.Count++
			delta.TTL = record.ParseTTL(answer.TTL)
			delta.Timestamp = obs.Timestamp
		}
	}

	result.TotalRecords, result.SkippedRecords = src.Counts()
	result.Duration = time.Since(start)
	return result, nil
}
