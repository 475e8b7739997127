// Package rules loads the immutable configuration data that drives
// normalization and matching: processor prefix lists, known dirty→canonical
// name mappings, legal-entity suffixes, free-text extraction patterns, and
// matching tolerances.
//
// Rule sets are authored in CUE and compiled through the CUE Go API. A
// default rule set is embedded in the binary; deployments override it with
// --rules pointing at a CUE file or directory.
//
// A compiled RuleSet is immutable after Build and is injected into the
// normalizer, resolver, and cascade rather than referenced as a global.
// Tests substitute small rule sets for deterministic behavior.
package rules
