// Package parser extracts typed metrics from planner output.
//
// A Parser holds an ordered table of rules. Each rule names one field, a
// regular expression and the capture group holding the value. Parsing applies
// every rule to the whole text independently: the leftmost match wins, a rule
// without a match leaves its field absent, and a capture that cannot be
// converted to the declared type fails the whole extraction.
package parser
