// Package assignment implements the lead assignment orchestrator: match the
// lead's zip against the funnel's rules, walk the fallback chain through
// target-status and cap checks, and commit the winner with a conditional
// write so redelivered or concurrent invocations cannot double-assign.
//
// The service depends on interfaces defined in repository.go and should
// never import from handler/. Concrete implementations live in
// repository/dynamo, repository/postgres, caps, rules, and events.
package assignment
