// Package refresh drives refresh sessions over the tracking set.
//
// A session feeds the pending ids through batch.Map in rounds. Successes are
// written to the set after each round and leave the pending set, fatal
// failures leave it without being written, and transient failures stay for
// the next round. Later rounds run with less concurrency and longer pauses:
//
//	round 1   concurrency 8, no delay
//	round 2   concurrency 3, 1-2s random delay per task
//	round 3+  concurrency 1, 2s delay per task
//
// with a 2s pause between rounds. A session ends when nothing is pending,
// when its context ends, or after Config.MaxRounds rounds if that is set.
//
// Only one session runs at a time; starting another returns ErrBusy.
package refresh
