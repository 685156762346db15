// Package ingest imports lots from CSV and XLSX files.
//
// A submission is checked synchronously: the file must be readable and its
// header must cover the required fields (name, set, quantity) after applying
// the column mapping. The rows are then processed by a background task. Each
// valid row finds or creates its card and creates a lot with an import event.
// Invalid rows are skipped and listed on the task with their 1-based row
// number, so one bad row never fails the whole file.
//
// When object storage is enabled the upload is staged there and a JSON report
// is written next to it when the task finishes.
package ingest
