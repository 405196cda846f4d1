// Package httpsource implements the upstream client for API-type sources.
//
// It turns a logical request into a GET against the source's base URL,
// carrying the request parameters as query string and the source credential
// as a bearer token. Responses are size-capped and classified into the
// shared error taxonomy: 429 becomes a retryable rate-limit failure with
// Retry-After honored, 5xx a retryable server failure, other statuses a
// permanent one. Credentials never appear in returned errors.
//
// The client performs no retries and no breaker logic of its own; the
// failover manager owns both.
package httpsource
