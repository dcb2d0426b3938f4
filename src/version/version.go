package version

// Version is overridden at build time with
// -ldflags "-X mongowiz/src/version.Version=v1.2.3".
var Version = "dev"
