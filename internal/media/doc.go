// Package media fetches the newest episode audio and cover image into the
// local temp directory.
//
// Providers exist for a Google Drive folder, an S3 prefix, and a local
// directory. All of them write through a ".part" file and rename it on
// completion, so a path returned by a Provider always names a complete file.
// Covers are normalized to a square PNG before upload; audio is inspected with
// ffprobe when it is installed.
package media
