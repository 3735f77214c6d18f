package web

import (
	"html/template"
)

// DocPageData is rendered by docPage.
type DocPageData struct {
	Version    string
	DocList    []string
	CurrentDoc string
	DocContent template.HTML
}

var docPage = template.Must(template.New("doc").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>stryd {{.Version}}{{if .CurrentDoc}} - {{.CurrentDoc}}{{end}}</title>
</head>
<body>
<nav>
<ul>
{{range .DocList}}<li><a href="/docs/{{.}}">{{.}}</a></li>
{{end}}</ul>
</nav>
<main>
{{.DocContent}}
</main>
</body>
</html>
`))
