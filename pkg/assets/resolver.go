package assets

import (
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
)

// minMarker is inserted between a file's base name and its extension to
// form the name of its minified variant.
const minMarker = ".min"

// Resolver turns web asset paths into versioned URLs backed by files in a
// public directory. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	publicDir string
	debug     func() bool
	logger    *slog.Logger
}

// NewResolver creates a Resolver rooted at publicDir. The debug callback is
// consulted on every lookup so that a live configuration change takes effect
// without rebuilding the resolver; a nil callback means debug is off.
// An empty publicDir disables resolution entirely.
func NewResolver(publicDir string, debug func() bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		publicDir: publicDir,
		debug:     debug,
		logger:    logger,
	}
}

// PublicDir returns the directory the resolver reads from.
func (r *Resolver) PublicDir() string {
	return r.publicDir
}

// URL returns the web path for file with its modification time appended,
// e.g. "/css/app.min.css?1718000000". When not in debug mode and a minified
// variant exists, the variant is used instead. If the file cannot be found the
// normalized web path is returned without a version.
func (r *Resolver) URL(file string) string {
	if r.publicDir == "" {
		return file
	}

	webPath := path.Clean("/" + strings.TrimLeft(file, "/"))
	public := strings.TrimRight(r.publicDir, "/")

	if !r.isDebug() {
		if minPath, ok := minifiedPath(webPath); ok && isRegularFile(public+minPath) {
			webPath = minPath
		}
	}

	info, err := os.Stat(public + webPath)
	if err != nil || !info.Mode().IsRegular() {
		r.logger.Debug("Asset not found, serving unversioned path", "asset", webPath)
		return webPath
	}

	return webPath + "?" + strconv.FormatInt(info.ModTime().Unix(), 10)
}

func (r *Resolver) isDebug() bool {
	return r.debug != nil && r.debug()
}

// minifiedPath returns the ".min" sibling of a rooted web path.
// It reports false for paths that are already minified or have no base name.
func minifiedPath(webPath string) (string, bool) {
	dir, base := path.Split(webPath)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" || strings.HasSuffix(name, minMarker) {
		return "", false
	}
	return dir + name + minMarker + ext, true
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
