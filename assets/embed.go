// assets/embed.go
//
// Static files compiled into the binary.
// Responsibilities:
//   - Embed index.html, the hot-seat browser client served at /play.
//
// Notes:
//   - The page drives the JSON API and listens on the events websocket; it
//     closes and deletes its previous game before starting a new one.

package assets

import "embed"

//go:embed index.html
var FS embed.FS

// IndexHTML returns the single-page hot-seat client.
func IndexHTML() ([]byte, error) {
	return FS.ReadFile("index.html")
}
