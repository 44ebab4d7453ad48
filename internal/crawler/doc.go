// Package crawler drives a region crawl: it pages through provider results
// for every coordinate and query, writes new places to the region's output,
// and consumes each finished coordinate from the resume store.
//
// The crawl is strictly sequential. A coordinate that fails is left in the
// store for the next run; a fatal provider condition (rejected key, spent
// quota) ends the run at once.
package crawler
