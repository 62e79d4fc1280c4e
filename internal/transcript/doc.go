// Package transcript exports a conversation's history as HTML for staff
// to archive or forward.
package transcript
