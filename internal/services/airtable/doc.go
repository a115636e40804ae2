// Package airtable reads the newest episode record from the tracking table
// and writes publish outcomes back to it.
//
// The client speaks the Airtable REST API directly: one GET for the newest
// record with non-empty "Email html", and PATCH updates for status fields.
package airtable
