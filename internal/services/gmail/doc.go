// Package gmail delivers title-approval requests through the Gmail API.
//
// Sender implements approval.Notifier. The message is a single HTML part
// listing every candidate as a selection link; the episode description is
// rendered from markdown with goldmark.
package gmail
