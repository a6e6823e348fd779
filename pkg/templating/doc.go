/*
Package templating provides a filesystem-based html/template manager and the
view helpers that pages use to talk to the rest of the application.

Full pages are loaded from "*.tmpl.html" files and partials from "*.part.html"
files. Helper functions come from Extensions: each extension contributes a
FuncMap, once at parse time and again for every request so that helpers such
as queryString or csrfField can see the request being served. Templates can be
reloaded from disk at runtime without restarting the application.

The ViewExtension supplies the helpers used by most pages:

	{{asset "css/app.css"}}                  cache-busted asset URL
	{{route "posts.show" "slug" .Slug}}      URL of a named route
	{{excerpt .Body 160}}                    tag-free summary cut at a word boundary
	{{queryString (dict "page" 2) "q"}}      current query string with edits
	{{csrfToken}} / {{csrfField "delete"}}   CSRF token and hidden input
	{{uri 1}} / {{uri "/posts/.*" "active"}} request path inspection
*/
package templating
