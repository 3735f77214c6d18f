// Command docgen builds the HTTP API reference page from the @Title,
// @Route, @Description and @Response annotations on the handlers in
// internal/api. The output is AsciiDoc, served by the node's docs pages.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/spf13/pflag"
)

type Endpoint struct {
	Title       string
	Method      string
	Path        string
	Description string
	Response    string
}

var (
	reTitle = regexp.MustCompile(`^// @Title: (.*)`)
	reRoute = regexp.MustCompile(`^// @Route: (.*)`)
	reDesc  = regexp.MustCompile(`^// @Description: (.*)`)
	reResp  = regexp.MustCompile(`^// @Response: (.*)`)
)

func main() {
	apiDir := pflag.String("api-dir", "internal/api", "directory holding the annotated handlers")
	out := pflag.String("out", "internal/docs/content/api.adoc", "output file, - for stdout")
	pflag.Parse()

	endpoints, err := collect(*apiDir)
	if err != nil {
		log.Fatalf("docgen: %v", err)
	}

	w := io.Writer(os.Stdout)
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("docgen: %v", err)
		}
		defer f.Close()
		w = f
	}
	if err := render(w, endpoints); err != nil {
		log.Fatalf("docgen: %v", err)
	}
	if *out != "-" {
		log.Printf("wrote %d endpoints to %s", len(endpoints), *out)
	}
}

// collect reads the non-test Go files of dir in name order.
func collect(dir string) ([]Endpoint, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var endpoints []Endpoint
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		found, err := parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		endpoints = append(endpoints, found...)
	}
	return endpoints, nil
}

// parse returns the annotated blocks of r. A block ends at its @Response
// line and is kept only if it has a title and a route.
func parse(r io.Reader) ([]Endpoint, error) {
	var (
		endpoints []Endpoint
		current   Endpoint
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
			current.Title = strings.TrimSpace(match[1])
		}
		if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
			current.Method, current.Path = splitRoute(strings.TrimSpace(match[1]))
		}
		if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
			current.Description = strings.TrimSpace(match[1])
		}
		if match := reResp.FindStringSubmatch(line); len(match) > 1 {
			current.Response = strings.TrimSpace(match[1])
			if current.Title != "" && current.Path != "" {
				endpoints = append(endpoints, current)
			}
			current = Endpoint{}
		}
	}
	return endpoints, scanner.Err()
}

func splitRoute(route string) (method, path string) {
	if m, p, ok := strings.Cut(route, " "); ok {
		return m, strings.TrimSpace(p)
	}
	return "GET", route
}

var page = template.Must(template.New("api").Parse(`= HTTP API
:toc:

The node serves a JSON API next to its Tendermint RPC endpoint. Keys and
addresses are base58 text. Rejections carry the ledger result code and
its name in the body, e.g. ` + "`" + `{"error": "...", "code": 13, "kind": "AlreadyJoined"}` + "`" + `.

This page is generated by ` + "`" + `go run ./cmd/docgen` + "`" + `.
{{range .}}
== {{.Title}}

` + "`" + `{{.Method}} {{.Path}}` + "`" + `

{{.Description}}.

.Response
[source,json]
----
{{.Response}}
----
{{end}}`))

func render(w io.Writer, endpoints []Endpoint) error {
	return page.Execute(w, endpoints)
}
