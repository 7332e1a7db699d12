package soar

// Version is set at build time via -ldflags.
var Version = "0.6.0-dev"
