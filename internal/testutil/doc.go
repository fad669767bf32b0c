// Package testutil provides doubles and helpers shared by arbiter tests.
//
// [ScarceResource] stands in for the physical device: it hands out one
// exclusive lock or any number of shared locks keyed by owner, and counts
// every attempt that would have broken exclusion. [PolicyDelegate] is a
// mediator delegate that applies access changes to a ScarceResource under
// a yield policy and records each call.
package testutil
