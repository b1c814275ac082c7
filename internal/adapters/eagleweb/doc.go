// Package eagleweb talks to EagleWeb assessor sites over HTTP.
//
// It provides the page-count oracle used to size and partition the ID
// space, and report sessions that search a range, request the account
// extract, poll for it and stream it to a part file. Every session signs
// in as a guest with its own cookie jar.
package eagleweb
