package version

// Version is the release version of the engine. Overridden at build time via
// -ldflags "-X github.com/slitherpit/engine/version.Version=...".
var Version = "0.1.0-dev"
