// Package extraction turns documents on disk into plain text.
//
// The format is chosen by file extension. PDF, HTML and CSV are parsed with
// the langchaingo document loaders; text formats are read as is. Any read or
// parse failure is reported as ErrExtractionFailed.
package extraction
