// Package bridge exposes an api.Client over HTTP and calls remote bridges.
//
// Handler serves the bridge protocol on an echo router:
//
//	GET  ?action=discover
//	GET  ?action=health-check
//	GET  ?action=code&workflowId=...&stepId=...
//	POST ?action=execute|preview&workflowId=...&stepId=...
//
// Client is the matching transport. Requests are signed with HMAC-SHA256 in
// the x-novu-signature header and retried with backoff on server errors.
package bridge
