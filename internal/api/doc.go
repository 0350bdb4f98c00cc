// Package api is the REST client for the monitoring service.
//
// It covers the check and log resources:
//
//	GET    /api/checks               list checks
//	POST   /api/checks               create a check
//	DELETE /api/checks/{id}          delete a check
//	PATCH  /api/checks/{id}          update a check (seen flag)
//	POST   /api/checks/{id}/update   re-run a check now
//	GET    /api/logs                 list log entries
//	DELETE /api/logs                 clear the log
//
// Failures are reported as one of [NetworkError], [ConflictError] or
// [ValidationError] so callers can classify them with errors.As.
package api
