package templating

import (
	"html/template"
	"net/http"
)

// Extension contributes template functions to a TemplateManager.
//
// Funcs is called with a nil request when templates are parsed, so it must
// return every function name it provides even without a request. It is then
// called once per ExecuteRequest with the request being served.
type Extension interface {
	Name() string
	Funcs(r *http.Request) template.FuncMap
}

// Configurable is implemented by extensions that read the template configuration.
// The manager passes the current config on load and on every SetConfig.
type Configurable interface {
	SetConfig(config *TemplateConfig)
}
