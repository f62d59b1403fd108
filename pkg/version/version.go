package version

// Version is the downlocal version, populated at build time.
var Version = "devel"

// Commit is the git commit downlocal was built from, populated at build time.
var Commit = "unknown"
