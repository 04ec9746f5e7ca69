// Package collector implements the event distribution hub of a collector:
// the subscriber registry, the latest-event buffer, push/pull delivery and the
// named command/request/service surface published on a transport substrate.
// Files by concern:
//
//   - hub.go: Hub type, construction, Start/Stop lifecycle.
//   - config.go: HubConfig and package defaults.
//   - registry.go: subscriber registry (identity -> delivery mode + filter).
//   - buffer.go: latest raw payload + decoded event.
//   - publish.go: inbound events, push rounds and pull requests.
//   - commands.go: handlers for the inbound named commands.
//   - stats.go, status.go: STATS service and /status reporting.
//   - errors.go: typed errors and IsXxx helpers.
//   - notices.go: lifecycle notices for logs and tests.
//   - metrics.go: prometheus collectors.
//
// The hub is fed either directly (COLLECT_RAW_EVENT, HTTP push) or by the
// stream synchronizer through OnCompositeEvent.
package collector
