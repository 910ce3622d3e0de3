// Package pba runs probabilistic bias analysis: many independent trials, each
// drawing bias parameters, bootstrap-resampling the records and computing one
// corrected estimate, summarised by the median and a simulation interval.
//
// Every trial owns random streams derived from the run seed and its index,
// so a run is reproducible from its seed regardless of worker count or
// scheduling.
package pba
