// Package binder holds the data model shared by the article binding pipeline:
// jobs and their persisted collection, resource descriptors produced by the
// extractor, fetched resources, per-page documents, merge chunks, the error
// taxonomy, and the interfaces each pipeline stage depends on.
package binder
