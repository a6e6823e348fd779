/*
Package assets resolves public asset paths into cache-busted URLs.

A Resolver maps a web path such as "css/app.css" onto a file below the public
directory. Outside of debug mode a minified sibling ("css/app.min.css") is
preferred when it exists, and the file's modification time is appended as a
query string so browsers refetch the asset whenever it changes on disk. Paths
that do not resolve to a regular file are returned unchanged.
*/
package assets
