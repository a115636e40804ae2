// Package googleauth loads the installed-app OAuth client and the stored
// user token shared by the Drive provider and the Gmail sender. Refreshed
// tokens are written back to the token file.
package googleauth
