// Package harness runs scripted decision scenarios against a real engine.
//
// A scenario seeds an isolated in-memory store with feed items and knowledge,
// then drives the engine step by step on a manual clock. Every decision is
// recorded in a trace that can be checked with assertions and compared
// against a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: insight_then_publish
//	description: "What this scenario validates"
//	config:
//	  max_posts_per_hour: 2
//	  min_minutes_between_posts: 30
//	knowledge:
//	  - { topic: AI, concept: planning, description: "..." }
//	feed:
//	  items:
//	    - { id: "7001", text: "New research on planning." }
//	  mentions:
//	    - { id: "9001", author: alice, text: "thoughts?" }
//	responses:
//	  quote: ["Agents plan better with subgoals."]
//	  reply: ["Planning is the hard part."]
//	steps:
//	  - do: insight
//	    expect: { status: done }
//	  - do: publish
//	  - do: advance
//	    duration: 31m
//	  - do: reply
//	    mention: "9001"
//	assertions:
//	  - type: trace_count
//	    action: post_insight
//	    count: 1
//	  - type: final_state
//	    table: generated_outputs
//	    where: { id: 1 }
//	    expect: { posted: 1 }
//
// # Step Types
//
//   - insight: run PostInsight for the optional topic
//   - publish: run PublishOutput on the most recent insight decision
//   - reply: run ReplyToMention for a feed mention
//   - confirm: confirm an output as published outside the engine
//   - ingest: store more feed items
//   - advance: move the clock forward
//   - bootstrap: rebuild session state from the store
//
// # Assertion Types
//
//   - trace_contains: a decision with the action (and status, reason) exists
//   - trace_order: the actions appear in the given order
//   - trace_count: the action appears exactly N times
//   - final_state: one row of a table matches the expected values
//
// # Deterministic Testing
//
// The clock starts at testutil.Epoch and moves only on advance steps. Cycle
// ids come from testutil.SequentialCycleIDs and published ids are "post-1",
// "post-2" and so on, so traces are identical across runs.
package harness
