// Package ledger persists the append-only history of patching attempts.
//
// Every attempt, successful or not, produces exactly one record holding
// the unit, the target, the final outcome, and the full state trace.
// Records are never updated or deleted; the ledger is the audit trail
// reviewers use to judge a plate run after the fact.
package ledger
