// Package engine implements the curation and reply decision cycles.
//
// An Engine owns the session state and runs one cycle at a time:
//
//   - PostInsight picks the best recent content item, has the generator
//     comment on it and materializes the result as an unposted output.
//   - PublishOutput publishes a materialized output and confirms it.
//   - ReplyToMention answers an inbound mention once, optionally preparing a
//     quote output about the post the mention refers to.
//
// Every cycle returns exactly one Decision. Expected refusals (rate limits,
// duplicates, nothing worth saying) are StatusDenied with an outcome.Reason;
// store and collaborator errors are StatusFailed with an outcome.Kind.
// Neither panics nor exits the process.
//
// Ordering:
//
// Each cycle is stamped with a monotonic seq from Clock and a cycle id from a
// CycleIDGenerator. The governor counts a post only when it is confirmed, so
// a crash between materialize and publish never consumes rate budget.
//
// Concurrency:
//
// Cycle methods serialize on the engine mutex. MentionQueue is the only type
// here meant to be shared between goroutines without the engine.
package engine
