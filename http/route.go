package http

import "regexp"

// Route is one compiled entry of the route table. Routes live from
// registration to server shutdown and are never reordered.
type Route struct {
	Method   Method
	Template string
	Handler  Handler

	pattern    *regexp.Regexp
	paramNames []string
}
