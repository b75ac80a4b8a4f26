package version

// Set at build time via -ldflags "-X groovebox/internal/version.AppVersion=...".
var (
	AppName    = "Groovebox"
	AppVersion = "dev"
)
