package versioning_test

// Service is a thin audit-trail wrapper around Manager (see manager_test.go
// for the versioning algorithm itself); its only added behavior is
// recording the two audit entries on a created version, which requires a
// real *store.Store-backed audit.Log and is exercised by the pipeline
// package's integration tests instead of a SQLite-backed unit test here.
