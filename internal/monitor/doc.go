// Package monitor runs periodic passes over every alert rule: fetch the
// product page, extract the current price, decide whether the owner must be
// told, persist what was observed and deliver notifications.
//
// A pass moves through Loading, Dispatching, Awaiting and Settling before
// returning to Idle. Failures of one rule never affect another; only a
// failure to load the rule set aborts a pass, which is then retried on the
// next interval.
package monitor
