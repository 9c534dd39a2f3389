// Package server maps request lines onto canned responses via a fixed route
// table.
package server

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"

	helloFile    = "hello.html"
	notFoundFile = "404.html"
)

// route describes the response for one request line.
type route struct {
	status string
	file   string
	slow   bool
}

// routes is matched against the whole request line, byte for byte.
var routes = map[string]route{
	"GET / HTTP/1.1":      {status: statusOK, file: helloFile},
	"GET /sleep HTTP/1.1": {status: statusOK, file: helloFile, slow: true},
}

var notFoundRoute = route{status: statusNotFound, file: notFoundFile}

// matchRoute returns the route for requestLine, or the 404 route.
func matchRoute(requestLine string) route {
	if r, ok := routes[requestLine]; ok {
		return r
	}
	return notFoundRoute
}
