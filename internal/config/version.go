package config

// Version is the overlay service binary version.
// Set at build time via: -ldflags "-X github.com/pwa-modeller/overlay/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
