// Package search talks to the ad-interest search API. It provides the HTTP
// adapter, a structured call-logging decorator, the error taxonomy the
// orchestrator uses to decide between retrying and failing an item, and a
// scripted client for tests.
package search
